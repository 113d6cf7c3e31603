package app

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dshills/addonhost/internal/config"
	"github.com/dshills/addonhost/internal/watcher"
)

// shutdownTimeout bounds the whole teardown.
const shutdownTimeout = 10 * time.Second

// Run starts the addon manager and its collaborators and pumps frames until
// ctx is cancelled or Shutdown is called. Everything is torn down before Run
// returns.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := app.start(ctx); err != nil {
		cancel()
		return errors.Join(err, app.teardown())
	}

	app.eventLoop(ctx)
	// Abort in-flight scheduled checks before waiting on them.
	cancel()
	return app.teardown()
}

// start brings up the manager, the directory watcher, the control server
// and the update schedule.
func (app *Application) start(ctx context.Context) error {
	cfg := app.config

	if err := app.manager.Start(); err != nil {
		return &ComponentError{Component: "manager", Action: "start", Err: err}
	}

	if cfg.Host.Build != 0 {
		if err := config.SaveState(cfg.StatePath(), config.State{LastBuild: cfg.Host.Build}); err != nil {
			app.log.WithError(err).Warn("could not record host build")
		}
	}

	w, err := watcher.NewDirWatcher(cfg.Addons.Dir, app.logger.WithField("component", "watcher"))
	if err != nil {
		// Without a watcher changes are picked up by explicit rescans only.
		app.log.WithError(err).Warn("addon directory watcher unavailable")
	} else {
		app.watcher = w
		go app.manager.Follow(w.Changed())
	}

	if app.control != nil {
		addr, err := app.control.Start(cfg.Control.Listen)
		if err != nil {
			return &ComponentError{Component: "control", Action: "listen", Err: err}
		}
		app.mu.Lock()
		app.controlAddr = addr
		app.mu.Unlock()
	}

	if app.checker != nil && cfg.Update.Schedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Update.Schedule, func() {
			if err := app.manager.CheckAllForUpdates(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.log.WithError(err).Warn("scheduled update check failed")
			}
		})
		if err != nil {
			return &ComponentError{Component: "update schedule", Action: "parse", Err: err}
		}
		c.Start()
		app.cron = c
	}

	app.log.Info("addon host running")
	return nil
}

// Shutdown asks a running application to stop. When Run was never called
// it releases everything New acquired.
func (app *Application) Shutdown() error {
	app.stopOnce.Do(func() { close(app.done) })
	if app.running.Load() {
		return nil
	}
	return app.teardown()
}

// teardown stops components in reverse start order. It runs once.
func (app *Application) teardown() error {
	app.downOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error

		// 1. Stop scheduled checks and wait for a running one.
		if app.cron != nil {
			select {
			case <-app.cron.Stop().Done():
			case <-ctx.Done():
				errs = append(errs, &ComponentError{Component: "update schedule", Action: "stop", Err: ErrShutdownTimeout})
			}
		}

		// 2. Stop taking outside requests.
		if app.control != nil {
			if err := app.control.Shutdown(ctx); err != nil {
				errs = append(errs, &ComponentError{Component: "control", Action: "shutdown", Err: err})
			}
		}
		if app.watcher != nil {
			if err := app.watcher.Close(); err != nil {
				errs = append(errs, &ComponentError{Component: "watcher", Action: "close", Err: err})
			}
		}

		// 3. Unload every addon and save the policy.
		if err := app.manager.Shutdown(ctx); err != nil {
			errs = append(errs, &ComponentError{Component: "manager", Action: "shutdown", Err: err})
		}
		app.unsubscribeAll()

		app.downErr = errors.Join(errs...)
		if app.downErr != nil {
			app.log.WithError(app.downErr).Error("addon host stopped with errors")
		} else {
			app.log.Info("addon host stopped")
		}
		app.logCloser.Close()
	})
	return app.downErr
}
