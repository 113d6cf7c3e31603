package addon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/capability"
	"github.com/dshills/addonhost/internal/watcher"
)

// Manager owns every addon record and the action queue that drives them.
//
// A single mutex guards the registry and the queue. ProcessQueue drains the
// queue under that lock; blocking work (update checks, unload entry points,
// directory scans) runs on a background pool and posts follow-up actions.
type Manager struct {
	mu sync.Mutex

	// Records by path
	records map[string]*Record

	// Policy-only records by signature, waiting for a matching binary
	placeholders map[uint32]*Record

	queue *ActionQueue

	// Lifecycle events raised once the lock is released
	pendingEvents []pendingEvent

	loader   ModuleLoader
	api      APIProvider
	cleaners []ReferenceCleaner
	checker  UpdateChecker
	store    PolicyStore
	events   EventRaiser
	notifier Notifier
	metrics  *Metrics
	log      *logrus.Entry

	config       Config
	pinned       map[uint32]bool
	noPersist    bool
	started      bool
	shuttingDown bool

	pool     *ants.Pool
	tasks    sync.WaitGroup
	debounce *watcher.Debouncer

	scanning    atomic.Bool
	rescanAgain atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

type pendingEvent struct {
	name      string
	signature uint32
}

// NewManager creates a manager for the addons in config.Directory.
func NewManager(loader ModuleLoader, api APIProvider, config Config, opts ...Option) (*Manager, error) {
	if loader == nil {
		return nil, errors.New("addon manager requires a module loader")
	}
	if api == nil {
		return nil, errors.New("addon manager requires a capability provider")
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.UpdateConcurrency <= 0 {
		config.UpdateConcurrency = DefaultConfig().UpdateConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		records:      make(map[string]*Record),
		placeholders: make(map[uint32]*Record),
		queue:        NewActionQueue(),
		loader:       loader,
		api:          api,
		log:          discardLogger(),
		config:       config,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	if config.Pinned != nil {
		m.pinned = make(map[uint32]bool, len(config.Pinned))
		for _, sig := range config.Pinned {
			m.pinned[sig] = true
		}
	}
	m.noPersist = config.Pinned != nil || config.PinnedSession

	pool, err := ants.NewPool(config.Workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			m.log.WithField("panic", p).Error("addon background task panicked")
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create addon task pool: %w", err)
	}
	m.pool = pool
	m.debounce = watcher.NewDebouncer(config.Quiescence, m.Rescan)

	return m, nil
}

// Start reads the load policy and scans the addon directory. The loads it
// finds are queued for the next ProcessQueue.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if err := m.loadPolicy(); err != nil {
		// Keep the broken document on disk for the user to fix.
		m.log.WithError(err).Error("load policy unreadable; policy will not be saved this session")
		m.mu.Lock()
		m.noPersist = true
		m.mu.Unlock()
	}

	m.scan()
	return nil
}

// Directory returns the scanned addon directory.
func (m *Manager) Directory() string {
	return m.config.Directory
}

// Enqueue sets the pending verb for path. A later verb for the same path
// replaces it.
func (m *Manager) Enqueue(path string, v Verb) {
	m.mu.Lock()
	m.queue.Push(path, v)
	m.mu.Unlock()
}

// Pending returns the number of queued actions.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// ProcessQueue executes every queued action. The host calls it once per
// frame. Actions posted while it runs are executed on the next call.
func (m *Manager) ProcessQueue() int {
	m.mu.Lock()
	actions := m.queue.Drain()
	for _, a := range actions {
		m.executeLocked(a)
	}
	if len(actions) > 0 {
		m.updateGaugesLocked()
	}
	m.unlockAndFlush()
	return len(actions)
}

func (m *Manager) executeLocked(a Action) {
	m.metrics.action(a.Verb)

	if rec := m.records[a.Path]; rec != nil && rec.WaitingForUnload && !a.Verb.isFree() {
		m.log.WithFields(logrus.Fields{"path": a.Path, "verb": a.Verb.String()}).
			Debug("ignoring action while unload is in flight")
		return
	}

	switch a.Verb {
	case VerbLoad:
		m.loadLocked(a.Path)
	case VerbUnload:
		m.unloadLocked(a.Path, false)
	case VerbReload:
		m.reloadLocked(a.Path)
	case VerbUninstall:
		m.uninstallLocked(a.Path)
	case VerbFreeOnly:
		m.freeLocked(a.Path, false)
	case VerbFreeThenLoad:
		m.freeLocked(a.Path, true)
	}
}

func (m *Manager) reloadLocked(path string) {
	rec := m.records[path]
	if rec != nil && rec.State.IsLoaded() {
		m.unloadLocked(path, true)
		return
	}
	m.loadLocked(path)
}

// RequestLoad queues an explicit user load. Explicit loads bypass the
// whitelist and clear disabled-until-update.
func (m *Manager) RequestLoad(path string) error {
	return m.request(path, VerbLoad, func(rec *Record) {
		rec.FlaggedForEnable = true
		rec.FlaggedForDisable = false
	})
}

// RequestUnload queues an explicit user unload.
func (m *Manager) RequestUnload(path string) error {
	return m.request(path, VerbUnload, func(rec *Record) {
		rec.FlaggedForDisable = true
		rec.FlaggedForEnable = false
	})
}

// RequestReload queues a reload.
func (m *Manager) RequestReload(path string) error {
	return m.request(path, VerbReload, nil)
}

// RequestUninstall queues an uninstall.
func (m *Manager) RequestUninstall(path string) error {
	return m.request(path, VerbUninstall, nil)
}

// Request queues v for path.
func (m *Manager) Request(path string, v Verb) error {
	switch v {
	case VerbLoad:
		return m.RequestLoad(path)
	case VerbUnload:
		return m.RequestUnload(path)
	case VerbReload:
		return m.RequestReload(path)
	case VerbUninstall:
		return m.RequestUninstall(path)
	default:
		return fmt.Errorf("verb %s cannot be requested", v)
	}
}

func (m *Manager) request(path string, v Verb, mark func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return ErrShuttingDown
	}
	rec := m.records[path]
	if rec == nil {
		return fmt.Errorf("%s: %w", path, ErrNotTracked)
	}
	if rec.WaitingForUnload {
		return fmt.Errorf("%s: %w", path, ErrBusy)
	}
	if mark != nil {
		mark(rec)
	}
	m.queue.Push(path, v)
	return nil
}

// PathForSignature returns the path of the record owning sig.
func (m *Manager) PathForSignature(sig uint32) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec := m.bySignatureLocked(sig, ""); rec != nil {
		return rec.Path, true
	}
	return "", false
}

// Preference is a persisted per-addon setting.
type Preference int

// Preferences.
const (
	PrefPausingUpdates Preference = iota
	PrefAllowPrereleases
	PrefFavorite
	PrefDisabledUntilUpdate
)

// SetPreference updates a persisted setting and saves the policy.
func (m *Manager) SetPreference(path string, p Preference, value bool) error {
	m.mu.Lock()
	defer m.unlockAndFlush()

	rec := m.records[path]
	if rec == nil {
		return fmt.Errorf("%s: %w", path, ErrNotTracked)
	}
	switch p {
	case PrefPausingUpdates:
		rec.PausingUpdates = value
	case PrefAllowPrereleases:
		rec.AllowPrereleases = value
	case PrefFavorite:
		rec.Favorite = value
	case PrefDisabledUntilUpdate:
		if rec.DisabledUntilUpdate != value {
			rec.NotifiedDisabled = false
		}
		rec.DisabledUntilUpdate = value
	default:
		return fmt.Errorf("unknown preference %d", p)
	}
	m.saveLocked()
	return nil
}

// Records returns a snapshot of every tracked record sorted by path.
// Placeholders are not included.
func (m *Manager) Records() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Record returns a snapshot of the record at path.
func (m *Manager) Record(path string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.records[path]
	if rec == nil {
		return Info{}, false
	}
	return rec.info(), true
}

// NotifyChanged tells the manager the addon directory changed. The rescan
// runs once the signals stop for the quiescence window.
func (m *Manager) NotifyChanged() {
	m.debounce.Trigger()
}

// Follow calls NotifyChanged for every signal on ch until ch is closed.
func (m *Manager) Follow(ch <-chan struct{}) {
	m.debounce.Forward(ch)
}

// Shutdown saves the policy one last time, unloads every mapped module,
// including locked ones, and stops background work.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return nil
	}
	m.saveLocked()
	m.shuttingDown = true
	m.debounce.Stop()

	type target struct {
		path   string
		unload UnloadFunc
		rng    capability.AddressRange
		name   string
	}
	var targets []target
	for path, rec := range m.records {
		if !rec.State.IsLoaded() || rec.WaitingForUnload {
			continue
		}
		rec.WaitingForUnload = true
		targets = append(targets, target{
			path:   path,
			unload: rec.Definition.Unload,
			rng:    rec.Range,
			name:   rec.Name(),
		})
	}
	m.mu.Unlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].path < targets[j].path })
	for _, t := range targets {
		if t.unload != nil {
			if err := callUnload(t.unload); err != nil {
				m.log.WithError(err).WithField("path", t.path).Warn("addon unload entry failed during shutdown")
			}
		}
		m.cleanupReferences(t.name, t.rng)
	}

	m.mu.Lock()
	for _, t := range targets {
		m.freeLocked(t.path, false)
	}
	m.unlockAndFlush()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.tasks.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for addon tasks: %w", ctx.Err())
	}

	// Unloads that were already in flight post their free step after the
	// last frame; release those handles here.
	m.mu.Lock()
	for _, a := range m.queue.Drain() {
		if a.Verb.isFree() {
			m.freeLocked(a.Path, false)
		}
	}
	m.unlockAndFlush()

	m.pool.Release()
	return err
}

// submit runs fn on the background pool, or on a detached goroutine when
// the pool is saturated or closed.
func (m *Manager) submit(name string, fn func()) {
	m.tasks.Add(1)
	task := func() {
		defer m.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				m.log.WithFields(logrus.Fields{
					"task":  name,
					"stack": string(debug.Stack()),
				}).Errorf("addon task panicked: %v", r)
			}
		}()
		fn()
	}
	if err := m.pool.Submit(task); err != nil {
		m.log.WithError(err).WithField("task", name).Debug("running addon task detached")
		go task()
	}
}

// deferEventLocked queues a lifecycle event for after the lock is released.
func (m *Manager) deferEventLocked(name string, sig uint32) {
	m.pendingEvents = append(m.pendingEvents, pendingEvent{name: name, signature: sig})
}

// unlockAndFlush releases the lock and raises deferred events.
func (m *Manager) unlockAndFlush() {
	evs := m.pendingEvents
	m.pendingEvents = nil
	m.mu.Unlock()

	if m.events == nil {
		return
	}
	for _, ev := range evs {
		m.events.Raise(ev.name, ev.signature)
	}
}

func (m *Manager) notify(key, message string) {
	if m.notifier != nil {
		m.notifier.Notify(key, message)
	}
}

// bySignatureLocked returns the tracked record owning sig, ignoring the
// record at exclude. Records rejected by a load guard do not own their
// signature.
func (m *Manager) bySignatureLocked(sig uint32, exclude string) *Record {
	paths := make([]string, 0, len(m.records))
	for p := range m.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		rec := m.records[p]
		if p == exclude || rec.Definition == nil || rec.State.IsRejected() {
			continue
		}
		if rec.Definition.Signature == sig {
			return rec
		}
	}
	return nil
}

func (m *Manager) recordLog(rec *Record) *logrus.Entry {
	fields := logrus.Fields{"path": filepath.Base(rec.Path)}
	if sig := rec.Signature(); sig != 0 {
		fields["signature"] = SignatureString(sig)
	}
	return m.log.WithFields(fields)
}

func (m *Manager) updateGaugesLocked() {
	loaded := 0
	for _, rec := range m.records {
		if rec.State.IsLoaded() {
			loaded++
		}
	}
	m.metrics.gauges(loaded, len(m.records))
}
