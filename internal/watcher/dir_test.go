package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDirWatcherSignalsOnCreate(t *testing.T) {
	dir := t.TempDir()

	w, err := NewDirWatcher(dir, nil)
	if err != nil {
		t.Fatalf("NewDirWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "clock.lua"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-w.Changed():
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after file creation")
	}
	if w.Events() == 0 {
		t.Error("expected at least one event counted")
	}
}

func TestDirWatcherRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewDirWatcher(path, nil)
	if !errors.Is(err, ErrNotDirectory) {
		t.Errorf("err = %v, want ErrNotDirectory", err)
	}
}

func TestDirWatcherCloseIdempotent(t *testing.T) {
	w, err := NewDirWatcher(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, ok := <-w.Changed(); ok {
		t.Error("Changed channel should be closed")
	}
}
