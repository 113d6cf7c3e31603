package watcher

import "errors"

// Watcher errors.
var (
	// ErrWatcherClosed is returned when operating on a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrNotDirectory is returned when the watched path is not a directory.
	ErrNotDirectory = errors.New("watch path is not a directory")
)
