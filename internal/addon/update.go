package addon

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

func (m *Manager) wantsUpdateCheckLocked(rec *Record) bool {
	d := rec.Definition
	return m.checker != nil &&
		m.config.UpdatesEnabled &&
		!m.shuttingDown &&
		d != nil &&
		d.Provider != ProviderNone &&
		d.UpdateLink != "" &&
		!rec.CheckedForUpdate &&
		!rec.PausingUpdates
}

func (m *Manager) updateRequestLocked(rec *Record) UpdateRequest {
	d := rec.Definition
	return UpdateRequest{
		Signature:        d.Signature,
		Name:             d.Name,
		Version:          d.Version,
		Provider:         d.Provider,
		UpdateLink:       d.UpdateLink,
		Path:             rec.Path,
		AllowPrereleases: rec.AllowPrereleases,
	}
}

// startUpdateCheckLocked marks rec as checking and runs the check on the
// background pool.
func (m *Manager) startUpdateCheckLocked(rec *Record) {
	rec.CheckingForUpdate = true
	req := m.updateRequestLocked(rec)
	m.submit("update-check", func() {
		found, err := m.check(m.ctx, req)
		m.finishUpdateCheck(req.Path, found, err)
	})
}

func (m *Manager) check(ctx context.Context, req UpdateRequest) (bool, error) {
	if m.config.UpdateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.UpdateTimeout)
		defer cancel()
	}
	return m.checker.CheckAndMaybeDownload(ctx, req)
}

// finishUpdateCheck applies the result of a check and queues what follows.
func (m *Manager) finishUpdateCheck(path string, found bool, err error) {
	m.mu.Lock()
	defer m.unlockAndFlush()

	rec := m.records[path]
	if rec == nil {
		return
	}
	log := m.recordLog(rec)
	rec.CheckingForUpdate = false
	rec.CheckedForUpdate = true

	switch {
	case err != nil:
		m.metrics.updateCheck("error")
		log.WithError(err).Warn("update check failed")
	case found:
		m.metrics.updateCheck("found")
		rec.updateFound = true
		if rec.DisabledUntilUpdate {
			rec.DisabledUntilUpdate = false
			rec.NotifiedDisabled = false
			m.saveLocked()
		}
		log.Info("addon update downloaded")
		m.notify("updated:"+SignatureString(rec.Signature()),
			fmt.Sprintf("%s was updated.", rec.Name()))
	default:
		m.metrics.updateCheck("none")
	}

	switch {
	case rec.WaitingForUnload:
		// The free step decides what follows; a staged update is installed
		// by the next load.
		rec.loadAfterCheck = false
		if found {
			log.Debug("update staged while unloading")
		}
	case rec.loadAfterCheck:
		rec.loadAfterCheck = false
		m.queue.Push(path, VerbLoad)
	case found && rec.State == StateLoaded:
		m.queue.Push(path, VerbReload)
	case found && rec.State == StateLoadedLocked:
		m.notify("locked:"+SignatureString(rec.Signature()),
			fmt.Sprintf("%s is locked; the update applies after a restart.", rec.Name()))
	}
}

// CheckForUpdate runs an update check for the addon at path in the
// background. A found update is swapped in through the action queue.
func (m *Manager) CheckForUpdate(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return ErrShuttingDown
	}
	rec := m.records[path]
	if rec == nil || rec.Definition == nil {
		return fmt.Errorf("%s: %w", path, ErrNotTracked)
	}
	if rec.CheckingForUpdate {
		return fmt.Errorf("%s: %w", path, ErrBusy)
	}
	if m.checker == nil || rec.Definition.Provider == ProviderNone || rec.Definition.UpdateLink == "" {
		return fmt.Errorf("%s: %w", path, ErrNoProvider)
	}
	m.startUpdateCheckLocked(rec)
	return nil
}

// CheckAllForUpdates checks every addon with an update provider whose
// updates are not paused, at most Config.UpdateConcurrency at a time, and
// waits for the checks to finish.
func (m *Manager) CheckAllForUpdates(ctx context.Context) error {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return ErrShuttingDown
	}
	var reqs []UpdateRequest
	if m.checker != nil && m.config.UpdatesEnabled {
		for _, rec := range m.records {
			d := rec.Definition
			if d == nil || rec.State.IsRejected() || d.Provider == ProviderNone || d.UpdateLink == "" {
				continue
			}
			if rec.PausingUpdates || rec.CheckingForUpdate || rec.WaitingForUnload {
				continue
			}
			rec.CheckingForUpdate = true
			reqs = append(reqs, m.updateRequestLocked(rec))
		}
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.UpdateConcurrency)
	for _, req := range reqs {
		g.Go(func() error {
			found, err := m.check(gctx, req)
			m.finishUpdateCheck(req.Path, found, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
