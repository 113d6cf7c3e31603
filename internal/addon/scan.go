package addon

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var reservedSuffixes = []string{UpdateSuffix, BackupSuffix, UninstallSuffix}

// Eligible reports whether the file at path may be an addon binary.
// Zero-byte files, directories, symlinks to directories or to nothing, and
// files with a reserved suffix are skipped. When exts is non-empty the
// extension must be listed.
func Eligible(path string, exts []string) bool {
	name := filepath.Base(path)
	for _, suf := range reservedSuffixes {
		if strings.HasSuffix(name, suf) {
			return false
		}
	}
	if len(exts) > 0 && !slices.Contains(exts, strings.ToLower(filepath.Ext(name))) {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Rescan schedules a directory scan on the background pool. Requests made
// while a scan runs cause one more scan afterwards.
func (m *Manager) Rescan() {
	m.mu.Lock()
	stopping := m.shuttingDown
	m.mu.Unlock()
	if stopping {
		return
	}

	if !m.scanning.CompareAndSwap(false, true) {
		m.rescanAgain.Store(true)
		return
	}
	m.submit("rescan", func() {
		for {
			m.scan()
			if !m.rescanAgain.Swap(false) {
				break
			}
		}
		m.scanning.Store(false)
		if m.rescanAgain.Swap(false) {
			m.Rescan()
		}
	})
}

// scan diffs the directory against the registry and queues the actions
// needed to reconcile them. File hashing happens outside the lock.
func (m *Manager) scan() {
	dir := m.config.Directory
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.log.WithField("dir", dir).Warn("addon directory does not exist")
		} else {
			m.log.WithError(err).WithField("dir", dir).Warn("could not read addon directory")
		}
		return
	}

	exts := m.loader.Extensions()
	present := make(map[string]uint64)
	var markers []string
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		if strings.HasSuffix(e.Name(), UninstallSuffix) {
			markers = append(markers, full)
			continue
		}
		if !Eligible(full, exts) {
			continue
		}
		h, err := HashFile(full)
		if err != nil {
			m.log.WithError(err).WithField("path", e.Name()).Debug("could not hash addon file")
			continue
		}
		present[full] = h
	}

	m.mu.Lock()
	defer m.unlockAndFlush()
	if m.shuttingDown {
		return
	}

	paths := make([]string, 0, len(m.records))
	for p := range m.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		rec := m.records[path]
		hash, ok := present[path]
		delete(present, path)
		staged := HasStagedUpdate(path)

		if !ok && !staged {
			m.vanishedLocked(rec)
			continue
		}
		if rec.WaitingForUnload || rec.CheckingForUpdate {
			continue
		}

		changed := ok && rec.ContentHash != 0 && hash != rec.ContentHash
		if changed || staged {
			m.recordLog(rec).WithFields(logrus.Fields{"changed": changed, "staged": staged}).
				Info("addon file changed")
			if rec.State.IsLoaded() {
				if rec.State == StateLoadedLocked {
					rec.ContentHash = hash
				}
				m.queue.Push(path, VerbReload)
			} else {
				m.queue.Push(path, VerbLoad)
			}
			continue
		}
		if rec.State == StateUnset {
			if _, queued := m.queue.Peek(path); !queued {
				m.queue.Push(path, VerbLoad)
			}
		}
	}

	for path := range present {
		m.records[path] = &Record{Path: path, State: StateUnset}
		m.queue.Push(path, VerbLoad)
		m.log.WithField("path", filepath.Base(path)).Debug("discovered addon")
	}

	for _, marker := range markers {
		live := strings.TrimSuffix(marker, UninstallSuffix)
		if rec := m.records[live]; rec != nil && rec.State == StateLoadedLocked && rec.FlaggedForUninstall {
			continue
		}
		if err := os.Remove(marker); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.log.WithError(err).WithField("path", filepath.Base(marker)).Warn("could not delete uninstall marker")
		}
	}

	m.updateGaugesLocked()
}

// vanishedLocked handles a tracked record whose file is gone.
func (m *Manager) vanishedLocked(rec *Record) {
	switch {
	case rec.State == StateLoadedLocked:
		// Still mapped; the record goes away with the process.
	case rec.State.IsLoaded():
		if !rec.WaitingForUnload {
			rec.vanished = true
			m.queue.Push(rec.Path, VerbUnload)
		}
	case rec.WaitingForUnload || rec.CheckingForUpdate:
		// The free step or the check completion retires it.
	default:
		m.retireLocked(rec)
	}
}
