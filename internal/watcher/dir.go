// Package watcher reports changes to the addon directory. The fsnotify
// backed DirWatcher turns every filesystem event in the directory into a
// zero-argument "changed" signal; Debouncer waits for the signals to go
// quiet before acting on them.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DirWatcher watches a single directory non-recursively.
type DirWatcher struct {
	mu sync.Mutex

	watcher *fsnotify.Watcher
	dir     string
	logger  *logrus.Entry

	// Output channel. Buffered with capacity one so pending signals coalesce.
	changed chan struct{}

	totalEvents atomic.Int64
	totalErrors atomic.Int64

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// NewDirWatcher starts watching dir.
func NewDirWatcher(dir string, logger *logrus.Entry) (*DirWatcher, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", absDir, ErrNotDirectory)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(absDir); err != nil {
		fsw.Close()
		return nil, err
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	w := &DirWatcher{
		watcher: fsw,
		dir:     absDir,
		logger:  logger,
		changed: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Dir returns the absolute watched directory.
func (w *DirWatcher) Dir() string {
	return w.dir
}

// Changed returns the channel that receives a value when the directory
// changed. Multiple changes between reads are delivered as one signal.
func (w *DirWatcher) Changed() <-chan struct{} {
	return w.changed
}

// Events returns how many filesystem events were observed.
func (w *DirWatcher) Events() int64 {
	return w.totalEvents.Load()
}

// Close stops the watcher.
func (w *DirWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	close(w.changed)
	return w.watcher.Close()
}

func (w *DirWatcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			w.totalEvents.Add(1)
			w.signal()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.totalErrors.Add(1)
			w.logger.WithError(err).Warn("addon directory watcher error")
			// Overflow or similar: a rescan recovers whatever was missed.
			w.signal()
		}
	}
}

func (w *DirWatcher) signal() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}
