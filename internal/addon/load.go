package addon

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// loadLocked runs the load guards for path in order and maps the module
// when every guard passes.
func (m *Manager) loadLocked(path string) {
	rec := m.records[path]
	if rec == nil {
		rec = &Record{Path: path, State: StateUnset}
		m.records[path] = rec
	}
	if m.shuttingDown || rec.State.IsLoaded() || rec.WaitingForUnload || rec.CheckingForUpdate {
		return
	}
	log := m.recordLog(rec)

	if HasStagedUpdate(path) {
		if err := SwapUpdate(path); err != nil {
			log.WithError(err).Warn("could not install staged update; will retry on next scan")
			return
		}
		log.Info("installed staged update")
	}

	hash, err := HashFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("addon file vanished before load")
			return
		}
		log.WithError(err).Warn("could not read addon file")
		return
	}
	rec.ContentHash = hash

	h, err := m.loader.Load(path)
	if err != nil {
		m.rejectLocked(rec, StateNotLoadedIncompatible, fmt.Errorf("%w: %w", ErrIncompatible, err))
		return
	}

	factory, ok := m.loader.ResolveEntry(h)
	if !ok {
		m.releaseLocked(rec, h)
		m.rejectLocked(rec, StateNotLoadedIncompatible, fmt.Errorf("%w: entry point not exported", ErrIncompatible))
		return
	}

	def, err := callFactory(factory)
	if err != nil || def == nil {
		m.releaseLocked(rec, h)
		if err == nil {
			err = errors.New("module returned no definition")
		}
		m.rejectLocked(rec, StateNotLoadedIncompatible, fmt.Errorf("%w: %w", ErrIncompatible, err))
		return
	}
	if !def.HasMinimumRequirements() {
		m.releaseLocked(rec, h)
		m.rejectLocked(rec, StateNotLoadedIncompatible, fmt.Errorf("%w: definition is missing required fields", ErrIncompatible))
		return
	}
	rec.Definition = def.Clone()
	sig := def.Signature
	log = m.recordLog(rec)

	if other := m.bySignatureLocked(sig, path); other != nil {
		m.releaseLocked(rec, h)
		m.rejectLocked(rec, StateNotLoadedDuplicate, fmt.Errorf("%w: already provided by %s", ErrDuplicate, other.Path))
		return
	}
	m.adoptPolicyLocked(rec)

	if !m.api.Supports(def.APIVersion) {
		m.releaseLocked(rec, h)
		m.rejectLocked(rec, StateNotLoadedIncompatibleCapability,
			fmt.Errorf("%w: version %d", ErrIncompatibleCapability, def.APIVersion))
		return
	}

	if !m.allowedLocked(rec) {
		m.releaseLocked(rec, h)
		rec.State = StateNotLoaded
		m.metrics.load(rec.State)
		log.Debug("addon not whitelisted for this session")
		return
	}

	if m.wantsUpdateCheckLocked(rec) {
		m.releaseLocked(rec, h)
		rec.State = StateNotLoaded
		rec.loadAfterCheck = true
		m.startUpdateCheckLocked(rec)
		log.Debug("deferring load until update check completes")
		return
	}

	m.applyVolatileGateLocked(rec)

	if rec.FlaggedForEnable && rec.DisabledUntilUpdate {
		rec.DisabledUntilUpdate = false
		rec.NotifiedDisabled = false
	}
	if rec.DisabledUntilUpdate && m.config.DisableVolatileUntilUpdate {
		m.releaseLocked(rec, h)
		rec.State = StateNotLoaded
		m.metrics.load(rec.State)
		if !rec.NotifiedDisabled {
			rec.NotifiedDisabled = true
			m.notify("disabled:"+SignatureString(sig),
				fmt.Sprintf("%s is disabled until it is updated.", rec.Definition.Name))
		}
		log.Info("addon disabled until update")
		return
	}

	table, err := m.api.Table(def.APIVersion, sig, m.loader.Tagger(h))
	if err != nil {
		m.releaseLocked(rec, h)
		m.rejectLocked(rec, StateNotLoadedIncompatibleCapability, fmt.Errorf("%w: %w", ErrIncompatibleCapability, err))
		return
	}
	rng := m.loader.AddressRange(h)

	if err := callLoad(rec.Definition.Load, table); err != nil {
		// The module may have registered callbacks before failing.
		m.cleanupReferences(rec.Definition.Name, rng)
		m.releaseLocked(rec, h)
		m.rejectLocked(rec, StateNotLoadedIncompatible, fmt.Errorf("load entry point: %w", err))
		return
	}

	rec.handle = h
	rec.Range = rng
	if rec.Definition.Hotloadable() {
		rec.State = StateLoaded
	} else {
		rec.State = StateLoadedLocked
	}
	rec.Enabled = true
	rec.FlaggedForEnable = false
	rec.FlaggedForDisable = false
	m.metrics.load(rec.State)

	log.WithFields(logrus.Fields{
		"state":   rec.State.String(),
		"version": rec.Definition.Version.String(),
		"range":   rng.String(),
	}).Info("addon loaded")

	m.saveLocked()
	m.deferEventLocked(EventAddonLoaded, sig)
}

// rejectLocked records a failed guard. Rejections are not retried until
// the file changes.
func (m *Manager) rejectLocked(rec *Record, s State, err error) {
	rec.State = s
	rec.FlaggedForEnable = false
	m.metrics.load(s)
	m.recordLog(rec).WithError(&LoadError{Path: rec.Path, Signature: rec.Signature(), Err: err}).
		Warn("addon rejected")
}

// releaseLocked gives a handle back to the loader.
func (m *Manager) releaseLocked(rec *Record, h Handle) {
	if h == nil {
		return
	}
	if err := m.loader.Unload(h); err != nil {
		m.recordLog(rec).WithError(err).Warn("could not release module handle")
	}
}

// allowedLocked applies the whitelist.
func (m *Manager) allowedLocked(rec *Record) bool {
	if rec.FlaggedForEnable {
		return true
	}
	if m.pinned != nil {
		return m.pinned[rec.Signature()]
	}
	return rec.Enabled
}

func callFactory(f DefinitionFactory) (def *Definition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Where: "definition factory", Value: r}
		}
	}()
	return f(), nil
}

func callLoad(fn LoadFunc, api any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Where: "load", Value: r}
		}
	}()
	return fn(api)
}

func callUnload(fn UnloadFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Where: "unload", Value: r}
		}
	}()
	return fn()
}
