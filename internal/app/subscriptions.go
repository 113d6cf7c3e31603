package app

import (
	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/addon"
)

// subscribeLifecycle logs the manager's lifecycle events as the host sees
// them.
func (app *Application) subscribeLifecycle() error {
	for _, name := range []string{
		addon.EventAddonLoaded,
		addon.EventAddonUnloaded,
		addon.EventAddonDisabledVolatile,
	} {
		sub, err := app.events.SubscribeHost(name, app.onLifecycleEvent)
		if err != nil {
			return err
		}
		app.subs = append(app.subs, sub)
	}
	return nil
}

func (app *Application) onLifecycleEvent(name string, payload any) {
	fields := logrus.Fields{"event": name}
	if sig, ok := payload.(uint32); ok {
		fields["addon"] = addon.SignatureString(sig)
	}
	app.log.WithFields(fields).Debug("addon lifecycle event")
}

func (app *Application) unsubscribeAll() {
	for _, sub := range app.subs {
		app.events.Unsubscribe(sub)
	}
	app.subs = nil
}
