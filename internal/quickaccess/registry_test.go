package quickaccess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryShortcuts(t *testing.T) {
	r := NewRegistry()

	clicked := 0
	require.NoError(t, r.AddShortcut(0, Shortcut{Identifier: "QA_B", OnClick: func() { clicked++ }}))
	require.NoError(t, r.AddShortcut(0, Shortcut{Identifier: "QA_A"}))
	assert.ErrorIs(t, r.AddShortcut(0, Shortcut{Identifier: "QA_A"}), ErrExists)
	assert.ErrorIs(t, r.AddShortcut(0, Shortcut{}), ErrInvalidEntry)

	sc := r.Shortcuts()
	require.Len(t, sc, 2)
	assert.Equal(t, "QA_A", sc[0].Identifier)

	require.NoError(t, r.Click("QA_B"))
	require.NoError(t, r.Click("QA_A"))
	assert.Equal(t, 1, clicked)
	assert.ErrorIs(t, r.Click("QA_C"), ErrNotFound)

	assert.True(t, r.Remove("QA_A"))
	assert.False(t, r.Remove("QA_A"))
}

func TestRegistryContextMenu(t *testing.T) {
	r := NewRegistry()

	drawn := 0
	require.NoError(t, r.AddContextItem(0, ContextItem{Identifier: "CM_1", Render: func() { drawn++ }}))
	require.NoError(t, r.AddContextItem(0, ContextItem{Identifier: "CM_2", Target: "QA_A", Render: func() { drawn++ }}))
	assert.ErrorIs(t, r.AddContextItem(0, ContextItem{Identifier: "CM_3"}), ErrInvalidEntry)

	assert.Equal(t, 1, r.RenderContextMenu(""))
	assert.Equal(t, 1, r.RenderContextMenu("QA_A"))
	assert.Equal(t, 2, drawn)
}

func TestRegistryCleanupReferences(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddShortcut(0x2000, Shortcut{Identifier: "QA_MOD"}))
	require.NoError(t, r.AddContextItem(0x2010, ContextItem{Identifier: "CM_MOD", Render: func() {}}))
	require.NoError(t, r.AddShortcut(0, Shortcut{Identifier: "QA_HOST"}))

	assert.Equal(t, uint32(2), r.CleanupReferences(0x2000, 0x3000))
	assert.Zero(t, r.CleanupReferences(0x2000, 0x3000))
	assert.Len(t, r.Shortcuts(), 1)
	require.NoError(t, r.AddShortcut(0x2000, Shortcut{Identifier: "QA_MOD"}))
}
