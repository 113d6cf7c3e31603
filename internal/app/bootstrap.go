package app

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/addon"
	"github.com/dshills/addonhost/internal/api"
	"github.com/dshills/addonhost/internal/config"
	"github.com/dshills/addonhost/internal/control"
	"github.com/dshills/addonhost/internal/event"
	"github.com/dshills/addonhost/internal/fonts"
	"github.com/dshills/addonhost/internal/input"
	"github.com/dshills/addonhost/internal/loader"
	"github.com/dshills/addonhost/internal/notify"
	"github.com/dshills/addonhost/internal/policy"
	"github.com/dshills/addonhost/internal/quickaccess"
	"github.com/dshills/addonhost/internal/render"
	"github.com/dshills/addonhost/internal/update"
)

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap() error {
	// 1. Config
	cfg, err := config.Load(app.opts.ConfigPath)
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	if app.opts.AddonsDir != "" {
		cfg.Addons.Dir = app.opts.AddonsDir
	}
	if app.opts.Listen != "" {
		cfg.Control.Listen = app.opts.Listen
	}
	if app.opts.LogLevel != "" {
		cfg.Log.Level = app.opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.config = cfg

	// 2. Logging
	logger, closer, err := NewLogger(cfg.Log, app.opts.LogOutput)
	if err != nil {
		return &InitError{Component: "logging", Err: err}
	}
	app.logger, app.logCloser = logger, closer
	app.log = logger.WithField("component", "app")

	if err := os.MkdirAll(cfg.Addons.Dir, 0o755); err != nil {
		return &InitError{Component: "addon directory", Err: err}
	}

	state, err := config.LoadState(cfg.StatePath())
	if err != nil {
		app.log.WithError(err).Warn("host state unreadable; treating this as the first run")
	}

	// 3. Host subsystems
	app.events = event.NewBus(event.WithLogger(logger.WithField("component", "events")))
	app.input = input.NewRegistry()
	app.render = render.NewRegistry(logger.WithField("component", "render"))
	app.fonts = fonts.NewRegistry()
	app.quick = quickaccess.NewRegistry()
	app.notices = notify.NewQueue(notify.WithLogger(logger.WithField("component", "notify")))

	host := api.Host{
		Events:      app.events,
		Input:       app.input,
		Render:      app.render,
		Fonts:       app.fonts,
		QuickAccess: app.quick,
		Notify:      app.notices,
		Log:         logger.WithField("component", "addon"),
	}
	app.provider = api.NewProvider(host)

	// 4. Loaders
	loaders := []addon.ModuleLoader{
		loader.NewLua(
			loader.WithLuaLogger(logger.WithField("component", "lua")),
			loader.WithCallTimeout(cfg.Addons.CallTimeout.Std()),
		),
	}
	if cfg.Addons.Native {
		loaders = append(loaders, loader.NewNative(
			loader.WithNativeLogger(logger.WithField("component", "native")),
		))
	}

	// 5. Metrics
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = newFrameMetrics(app.registry, func() int { return len(app.notices.Pending()) })

	// 6. Addon manager
	mcfg := cfg.ManagerConfig(state.LastBuild)
	mcfg.Pinned = app.opts.Pinned
	mcfg.PinnedSession = app.opts.PolicyPath != ""

	policyPath := cfg.PolicyPath()
	if app.opts.PolicyPath != "" {
		policyPath = app.opts.PolicyPath
	}

	mopts := []addon.Option{
		addon.WithLogger(logger.WithField("component", "addons")),
		addon.WithCleaners(host.Cleaners()...),
		addon.WithPolicyStore(policy.NewFile(policyPath)),
		addon.WithEvents(app.events),
		addon.WithNotifier(app.notices),
		addon.WithMetrics(addon.NewMetrics(app.registry)),
	}
	if cfg.Update.Enabled {
		ua := "addonhost"
		if app.opts.Version != "" {
			ua += "/" + app.opts.Version
		}
		app.checker = update.NewChecker(
			update.WithLogger(logger.WithField("component", "update")),
			update.WithUserAgent(ua),
			update.WithCacheTTL(cfg.Update.CacheTTL.Std()),
			update.WithRetries(cfg.Update.Retries, update.DefaultRetryInterval),
			update.WithGitHubAPI(cfg.Update.GitHubAPI),
		)
		mopts = append(mopts, addon.WithUpdateChecker(app.checker))
	}

	app.manager, err = addon.NewManager(loader.NewMulti(loaders...), app.provider, mcfg, mopts...)
	if err != nil {
		return &InitError{Component: "addon manager", Err: err}
	}

	if err := app.subscribeLifecycle(); err != nil {
		return &InitError{Component: "event subscriptions", Err: err}
	}

	// 7. Control server
	if cfg.Control.Listen != "" {
		app.control = control.New(app.manager,
			control.WithLogger(logger.WithField("component", "control")),
			control.WithNotices(app.notices),
			control.WithGatherer(app.registry),
		)
	}

	app.log.WithFields(logrus.Fields{
		"dir":            cfg.Addons.Dir,
		"build":          cfg.Host.Build,
		"last_build":     state.LastBuild,
		"build_advanced": mcfg.HostBuildAdvanced,
		"pinned":         mcfg.Pinned != nil || mcfg.PinnedSession,
	}).Infof("addon host initialized with %d loader(s)", len(loaders))
	return nil
}
