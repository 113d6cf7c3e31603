package addon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSwapUpdate(t *testing.T) {
	live := filepath.Join(t.TempDir(), "clock.addon")
	writeFile(t, live, "old")
	writeFile(t, live+UpdateSuffix, "new")
	writeFile(t, live+BackupSuffix, "stale")

	require.True(t, HasStagedUpdate(live))
	require.NoError(t, SwapUpdate(live))

	assert.Equal(t, "new", readFile(t, live))
	assert.Equal(t, "old", readFile(t, live+BackupSuffix))
	assert.False(t, HasStagedUpdate(live))
}

func TestSwapUpdateWithoutLiveFile(t *testing.T) {
	live := filepath.Join(t.TempDir(), "clock.addon")
	writeFile(t, live+UpdateSuffix, "new")

	require.NoError(t, SwapUpdate(live))
	assert.Equal(t, "new", readFile(t, live))
}

func TestSwapUpdateNothingStaged(t *testing.T) {
	live := filepath.Join(t.TempDir(), "clock.addon")
	writeFile(t, live, "old")

	err := SwapUpdate(live)
	assert.ErrorIs(t, err, ErrTransientIO)
	assert.Equal(t, "old", readFile(t, live))
}

func TestSwapUpdateRollsBack(t *testing.T) {
	live := filepath.Join(t.TempDir(), "clock.addon")
	writeFile(t, live, "old")
	writeFile(t, live+UpdateSuffix, "new")

	orig := renameFile
	t.Cleanup(func() { renameFile = orig })
	renameFile = func(from, to string) error {
		if from == live+UpdateSuffix {
			return errors.New("disk full")
		}
		return orig(from, to)
	}

	err := SwapUpdate(live)
	require.ErrorIs(t, err, ErrTransientIO)
	assert.Equal(t, "old", readFile(t, live), "live file restored")
	assert.Equal(t, "new", readFile(t, live+UpdateSuffix), "staged file kept for the next attempt")
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeFile(t, a, "same")
	writeFile(t, b, "same")

	ha, err := HashFile(a)
	require.NoError(t, err)
	hb, err := HashFile(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	writeFile(t, b, "different")
	hb, err = HashFile(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)

	_, err = HashFile(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEligible(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "clock.addon")
	writeFile(t, good, "x")
	empty := filepath.Join(dir, "empty.addon")
	writeFile(t, empty, "")
	link := filepath.Join(dir, "link.addon")
	require.NoError(t, os.Symlink(good, link))

	exts := []string{".addon"}
	assert.True(t, Eligible(good, exts))
	assert.True(t, Eligible(link, exts), "symlinks to regular files are followed")
	assert.False(t, Eligible(empty, exts))
	assert.False(t, Eligible(good+UpdateSuffix, nil))
	assert.False(t, Eligible(filepath.Join(dir, "missing.addon"), exts))
	assert.False(t, Eligible(good, []string{".so"}))
	assert.True(t, Eligible(good, nil))
}
