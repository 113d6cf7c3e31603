// Package app wires the addon host together: the host subsystems addons
// register into, the module loaders, the addon manager and its collaborators,
// and the frame pump that drives them.
package app

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/addon"
	"github.com/dshills/addonhost/internal/api"
	"github.com/dshills/addonhost/internal/config"
	"github.com/dshills/addonhost/internal/control"
	"github.com/dshills/addonhost/internal/event"
	"github.com/dshills/addonhost/internal/fonts"
	"github.com/dshills/addonhost/internal/input"
	"github.com/dshills/addonhost/internal/notify"
	"github.com/dshills/addonhost/internal/quickaccess"
	"github.com/dshills/addonhost/internal/render"
	"github.com/dshills/addonhost/internal/update"
	"github.com/dshills/addonhost/internal/watcher"
)

// Application is the central coordinator for all host components.
type Application struct {
	mu sync.Mutex

	config    *config.Config
	logger    *logrus.Logger
	log       *logrus.Entry
	logCloser io.Closer

	// Host subsystems addons register into
	events  *event.Bus
	input   *input.Registry
	render  *render.Registry
	fonts   *fonts.Registry
	quick   *quickaccess.Registry
	notices *notify.Queue

	// Addon management
	provider *api.Provider
	checker  *update.Checker
	manager  *addon.Manager
	registry *prometheus.Registry
	metrics  *frameMetrics
	subs     []event.Subscription

	// Started by Run
	watcher     *watcher.DirWatcher
	control     *control.Server
	controlAddr string
	cron        *cron.Cron

	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	downOnce sync.Once
	downErr  error

	opts Options
}

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// AddonsDir overrides addons.dir.
	AddonsDir string

	// Listen overrides control.listen.
	Listen string

	// LogLevel overrides log.level.
	LogLevel string

	// Pinned restricts the session to these signatures. A non-nil value
	// pins the session and disables policy persistence.
	Pinned []uint32

	// PolicyPath is an alternate load policy document. It is read but
	// never written.
	PolicyPath string

	// LogOutput receives log output when no log file is configured.
	LogOutput io.Writer

	// Version is reported in the update checker's User-Agent.
	Version string
}

// New creates a new Application with the given options.
func New(opts Options) (*Application, error) {
	app := &Application{
		opts: opts,
		done: make(chan struct{}),
	}
	if err := app.bootstrap(); err != nil {
		if app.logCloser != nil {
			app.logCloser.Close()
		}
		return nil, err
	}
	return app, nil
}

// IsRunning returns true if the application is running.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Config returns the effective configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

// Manager returns the addon manager.
func (app *Application) Manager() *addon.Manager {
	return app.manager
}

// Events returns the host event bus.
func (app *Application) Events() *event.Bus {
	return app.events
}

// Notices returns the notice queue.
func (app *Application) Notices() *notify.Queue {
	return app.notices
}

// Render returns the render callback registry.
func (app *Application) Render() *render.Registry {
	return app.render
}

// Gatherer returns the metrics registry.
func (app *Application) Gatherer() prometheus.Gatherer {
	return app.registry
}

// ControlAddr returns the bound control server address, or "" when the
// server is not running.
func (app *Application) ControlAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.controlAddr
}
