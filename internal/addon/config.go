package addon

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/watcher"
)

// Reserved file name suffixes.
const (
	UpdateSuffix    = ".update"
	BackupSuffix    = ".old"
	UninstallSuffix = ".uninstall"
)

// DefaultVolatileBuildThreshold is the host build jump above which addons
// flagged volatile are disabled until they are updated.
const DefaultVolatileBuildThreshold = 350

// Config configures the manager.
type Config struct {
	// Directory is scanned for addon binaries.
	Directory string

	// Quiescence is how long filesystem signals must stop before a rescan.
	Quiescence time.Duration

	// Workers bounds the background task pool.
	Workers int

	// LoadNewAddons loads addons that have no policy entry yet.
	LoadNewAddons bool

	// UpdatesEnabled allows update checks.
	UpdatesEnabled bool

	// UpdateTimeout bounds a single update check.
	UpdateTimeout time.Duration

	// UpdateConcurrency bounds CheckAllForUpdates.
	UpdateConcurrency int

	// DisableVolatileUntilUpdate is the host-wide switch that lets the
	// disabled-until-update flag hold addons back.
	DisableVolatileUntilUpdate bool

	// HostBuildAdvanced is set when the host build moved past the volatile
	// threshold since the last run. Volatile addons are then disabled until
	// an update is found.
	HostBuildAdvanced bool

	// Pinned lists the only signatures allowed to load. A non-nil value
	// pins the session: the policy is read but never written.
	Pinned []uint32

	// PinnedSession disables policy persistence even without Pinned, for
	// example when an alternate policy document was given.
	PinnedSession bool
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Directory:         "addons",
		Quiescence:        watcher.DefaultQuiescence,
		Workers:           8,
		LoadNewAddons:     true,
		UpdatesEnabled:    true,
		UpdateTimeout:     30 * time.Second,
		UpdateConcurrency: 4,

		DisableVolatileUntilUpdate: true,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *logrus.Entry) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithCleaners registers the reference cleaners run on every unload.
func WithCleaners(cleaners ...ReferenceCleaner) Option {
	return func(m *Manager) {
		m.cleaners = append(m.cleaners, cleaners...)
	}
}

// WithUpdateChecker sets the update checker. Without one no checks run.
func WithUpdateChecker(c UpdateChecker) Option {
	return func(m *Manager) {
		m.checker = c
	}
}

// WithPolicyStore sets where the load policy is persisted.
func WithPolicyStore(s PolicyStore) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithEvents sets the receiver of lifecycle events.
func WithEvents(e EventRaiser) Option {
	return func(m *Manager) {
		m.events = e
	}
}

// WithNotifier sets where user-visible notices go.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
