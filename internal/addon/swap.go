package addon

import (
	"errors"
	"fmt"
	"os"
)

// renameFile is replaced in tests to simulate filesystem failures.
var renameFile = os.Rename

// SwapUpdate replaces path with its staged path+UpdateSuffix file. The live
// file is kept as path+BackupSuffix. On failure the live file is restored
// and an error wrapping ErrTransientIO is returned. The module must not be
// mapped while this runs.
func SwapUpdate(path string) error {
	staged := path + UpdateSuffix
	backup := path + BackupSuffix

	if _, err := os.Stat(staged); err != nil {
		return fmt.Errorf("stat staged update: %w: %w", ErrTransientIO, err)
	}

	if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale backup: %w: %w", ErrTransientIO, err)
	}

	hadLive := true
	if err := renameFile(path, backup); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("back up live file: %w: %w", ErrTransientIO, err)
		}
		hadLive = false
	}

	if err := renameFile(staged, path); err != nil {
		if hadLive {
			if rbErr := renameFile(backup, path); rbErr != nil {
				return fmt.Errorf("install update: %w: %w (rollback failed: %v)", ErrTransientIO, err, rbErr)
			}
		}
		return fmt.Errorf("install update: %w: %w", ErrTransientIO, err)
	}
	return nil
}

// HasStagedUpdate reports whether path+UpdateSuffix exists.
func HasStagedUpdate(path string) bool {
	_, err := os.Stat(path + UpdateSuffix)
	return err == nil
}
