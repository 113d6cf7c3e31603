package addon

// BuildAdvanced reports whether the host build moved forward by more than
// threshold since last. A zero last build means no build was recorded.
func BuildAdvanced(last, current, threshold uint32) bool {
	if last == 0 || current <= last {
		return false
	}
	return current-last > threshold
}

// applyVolatileGateLocked disables a volatile addon until it is updated
// when the host build advanced. It runs once per record per session.
func (m *Manager) applyVolatileGateLocked(rec *Record) {
	if rec.volatileChecked {
		return
	}
	rec.volatileChecked = true

	d := rec.Definition
	if !m.config.HostBuildAdvanced || !m.config.DisableVolatileUntilUpdate || !d.Flags.Has(FlagVolatile) {
		return
	}
	if rec.updateFound || rec.FlaggedForEnable || rec.DisabledUntilUpdate {
		return
	}

	rec.DisabledUntilUpdate = true
	rec.NotifiedDisabled = false
	m.recordLog(rec).Warn("host build changed; volatile addon disabled until update")
	m.saveLocked()
	m.deferEventLocked(EventAddonDisabledVolatile, d.Signature)
}
