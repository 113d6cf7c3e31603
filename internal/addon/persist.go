package addon

import (
	"sort"

	"github.com/dshills/addonhost/internal/policy"
)

// loadPolicy turns stored entries into placeholders.
func (m *Manager) loadPolicy() error {
	if m.store == nil {
		return nil
	}
	entries, err := m.store.Load()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		m.placeholders[e.Signature] = &Record{
			MatchSignature:      e.Signature,
			Definition:          &Definition{Signature: e.Signature, Name: e.Name},
			Enabled:             e.IsLoaded,
			PausingUpdates:      e.IsPausingUpdates,
			DisabledUntilUpdate: e.IsDisabledUntilUpdate,
			AllowPrereleases:    e.AllowPrereleases,
			Favorite:            e.IsFavorite,
			known:               true,
		}
	}
	m.log.WithField("entries", len(entries)).Debug("load policy read")
	return nil
}

// adoptPolicyLocked attaches the placeholder for rec's signature, or gives
// a brand-new addon its default preferences.
func (m *Manager) adoptPolicyLocked(rec *Record) {
	sig := rec.Definition.Signature
	if rec.known && rec.MatchSignature == sig {
		return
	}
	if ph, ok := m.placeholders[sig]; ok {
		rec.Enabled = ph.Enabled
		rec.PausingUpdates = ph.PausingUpdates
		rec.DisabledUntilUpdate = ph.DisabledUntilUpdate
		rec.AllowPrereleases = ph.AllowPrereleases
		rec.Favorite = ph.Favorite
		delete(m.placeholders, sig)
	} else {
		rec.Enabled = m.config.LoadNewAddons
	}
	rec.known = true
	rec.MatchSignature = sig
}

// policyEntriesLocked builds the document: tracked records by path, then
// placeholders by signature. Records that never produced a valid
// definition have no entry.
func (m *Manager) policyEntriesLocked() []policy.Entry {
	paths := make([]string, 0, len(m.records))
	for p := range m.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	seen := make(map[uint32]bool)
	entries := make([]policy.Entry, 0, len(paths)+len(m.placeholders))
	for _, p := range paths {
		rec := m.records[p]
		if rec.Definition == nil || !rec.known || rec.State.IsRejected() {
			continue
		}
		if seen[rec.Definition.Signature] {
			continue
		}
		seen[rec.Definition.Signature] = true
		entries = append(entries, entryFor(rec))
	}

	sigs := make([]uint32, 0, len(m.placeholders))
	for sig := range m.placeholders {
		if !seen[sig] {
			sigs = append(sigs, sig)
		}
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i] < sigs[j] })
	for _, sig := range sigs {
		entries = append(entries, entryFor(m.placeholders[sig]))
	}
	return entries
}

func entryFor(rec *Record) policy.Entry {
	return policy.Entry{
		Name:                  rec.Name(),
		Signature:             rec.Signature(),
		IsLoaded:              rec.Enabled,
		IsPausingUpdates:      rec.PausingUpdates,
		IsDisabledUntilUpdate: rec.DisabledUntilUpdate,
		AllowPrereleases:      rec.AllowPrereleases,
		IsFavorite:            rec.Favorite,
	}
}

// saveLocked writes the policy unless saving is suppressed for the session,
// the policy was never read or the manager is shutting down.
func (m *Manager) saveLocked() {
	if m.store == nil || m.noPersist || m.shuttingDown || !m.started {
		return
	}
	if err := m.store.Save(m.policyEntriesLocked()); err != nil {
		m.log.WithError(err).Error("could not save load policy")
	}
}

// PolicyEntries returns the document the manager would save now.
func (m *Manager) PolicyEntries() []policy.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policyEntriesLocked()
}
