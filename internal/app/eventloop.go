package app

import (
	"context"
	"time"
)

// eventLoop pumps one frame per tick until ctx is cancelled or Shutdown is
// called.
func (app *Application) eventLoop(ctx context.Context) {
	ticker := time.NewTicker(app.config.Addons.FrameInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-app.done:
			return
		case <-ticker.C:
			app.Frame()
		}
	}
}

// Frame drains the addon action queue and dispatches the render stages.
// It returns the number of actions executed.
func (app *Application) Frame() int {
	start := time.Now()
	n := app.manager.ProcessQueue()
	app.render.Frame()
	app.metrics.observe(time.Since(start), n)
	return n
}
