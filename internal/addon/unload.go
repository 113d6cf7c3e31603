package addon

import (
	"errors"
	"fmt"
	"os"

	"github.com/dshills/addonhost/internal/capability"
)

// unloadLocked starts a background unload. The module's unload entry point
// and the reference cleanup run outside the lock; the handle is released by
// the free action they post back.
func (m *Manager) unloadLocked(path string, reload bool) {
	rec := m.records[path]
	if rec == nil || !rec.State.IsLoaded() || rec.WaitingForUnload {
		return
	}
	log := m.recordLog(rec)

	if rec.State == StateLoadedLocked {
		if !reload {
			rec.Enabled = false
			m.saveLocked()
		}
		rec.FlaggedForDisable = false
		m.notify("locked:"+SignatureString(rec.Signature()),
			fmt.Sprintf("%s is locked; the change takes effect after a restart.", rec.Name()))
		log.Info("addon locked; unload deferred to restart")
		return
	}

	rec.WaitingForUnload = true
	if !reload && !rec.vanished {
		rec.Enabled = false
		m.saveLocked()
	}

	unload := rec.Definition.Unload
	rng := rec.Range
	name := rec.Name()
	m.submit("unload", func() {
		m.runUnload(path, name, unload, rng, reload)
	})
}

// runUnload calls the unload entry point, verifies no subsystem still holds
// references into the module and posts the free action.
func (m *Manager) runUnload(path, name string, unload UnloadFunc, rng capability.AddressRange, reload bool) {
	if unload != nil {
		if err := callUnload(unload); err != nil {
			m.log.WithError(err).WithField("path", path).Warn("addon unload entry point failed")
		}
	}

	m.cleanupReferences(name, rng)

	verb := VerbFreeOnly
	if reload {
		verb = VerbFreeThenLoad
	}
	m.Enqueue(path, verb)
}

// freeLocked releases the handle of a record whose unload completed.
func (m *Manager) freeLocked(path string, thenLoad bool) {
	rec := m.records[path]
	if rec == nil {
		return
	}
	log := m.recordLog(rec)

	if rec.handle != nil {
		m.releaseLocked(rec, rec.handle)
		rec.handle = nil
		rec.Range = capability.AddressRange{}
		rec.State = StateNotLoaded
		m.metrics.unload()
		log.Info("addon unloaded")
		m.deferEventLocked(EventAddonUnloaded, rec.Signature())
	}
	rec.WaitingForUnload = false
	rec.FlaggedForDisable = false
	rec.vanished = false

	if rec.FlaggedForUninstall {
		m.deleteRecordFileLocked(rec)
		return
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !HasStagedUpdate(path) {
		m.retireLocked(rec)
		return
	}

	if thenLoad && !m.shuttingDown {
		m.loadLocked(path)
	}
}

// uninstallLocked removes an addon. Mapped hotloadable modules are
// unloaded first; locked modules are renamed aside for removal at restart.
func (m *Manager) uninstallLocked(path string) {
	rec := m.records[path]
	if rec == nil || rec.WaitingForUnload {
		return
	}
	log := m.recordLog(rec)

	switch rec.State {
	case StateLoaded:
		rec.FlaggedForUninstall = true
		m.unloadLocked(path, false)

	case StateLoadedLocked:
		if rec.FlaggedForUninstall {
			return
		}
		if err := os.Rename(path, path+UninstallSuffix); err != nil {
			log.WithError(err).Warn("could not mark locked addon for uninstall")
			m.notify("", fmt.Sprintf("Could not uninstall %s.", rec.Name()))
			return
		}
		rec.FlaggedForUninstall = true
		rec.Enabled = false
		m.saveLocked()
		m.notify("uninstall:"+SignatureString(rec.Signature()),
			fmt.Sprintf("%s is locked; uninstall completes after a restart.", rec.Name()))
		log.Info("uninstall deferred to restart")

	default:
		m.deleteRecordFileLocked(rec)
	}
}

// deleteRecordFileLocked deletes the binary and forgets the record and its
// policy entry.
func (m *Manager) deleteRecordFileLocked(rec *Record) {
	log := m.recordLog(rec)
	if err := os.Remove(rec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("could not delete uninstalled addon")
		rec.FlaggedForUninstall = false
		return
	}
	os.Remove(rec.Path + UpdateSuffix)
	delete(m.records, rec.Path)
	delete(m.placeholders, rec.Signature())
	log.Info("addon uninstalled")
	m.saveLocked()
}

// retireLocked drops the record of a vanished file. Its preferences are
// kept as a placeholder so they reattach if the file returns.
func (m *Manager) retireLocked(rec *Record) {
	delete(m.records, rec.Path)
	if rec.Definition != nil && !rec.State.IsRejected() {
		ph := &Record{
			MatchSignature:      rec.Definition.Signature,
			Definition:          rec.Definition,
			Enabled:             rec.Enabled,
			PausingUpdates:      rec.PausingUpdates,
			DisabledUntilUpdate: rec.DisabledUntilUpdate,
			AllowPrereleases:    rec.AllowPrereleases,
			Favorite:            rec.Favorite,
			known:               true,
		}
		m.placeholders[ph.MatchSignature] = ph
	}
	m.recordLog(rec).Info("addon file removed")
	m.updateGaugesLocked()
}
