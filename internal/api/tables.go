// Package api builds the versioned capability tables handed to an addon's
// load entry point. Every callback an addon registers through a table is
// attributed to an address inside the addon's module so it can be purged
// when the module is unloaded.
package api

import (
	"github.com/dshills/addonhost/internal/event"
	"github.com/dshills/addonhost/internal/fonts"
	"github.com/dshills/addonhost/internal/input"
	"github.com/dshills/addonhost/internal/quickaccess"
	"github.com/dshills/addonhost/internal/render"
)

// V1 is the base capability table.
type V1 struct {
	// Version is the table version the addon asked for.
	Version int

	// Signature is the signature of the addon holding the table.
	Signature uint32

	// Log writes a message to the host log. Unknown levels log at info.
	Log func(level, message string)

	SubscribeEvent   func(name string, h event.Handler) (event.Subscription, error)
	UnsubscribeEvent func(sub event.Subscription) bool
	RaiseEvent       func(name string, payload any)

	RegisterRender   func(stage render.Stage, fn render.Callback) (render.Token, error)
	DeregisterRender func(tok render.Token) bool

	// RegisterBind adds an input bind. defaultCombo is written like
	// "Ctrl+Shift+K"; an empty combo leaves the bind unassigned.
	RegisterBind   func(identifier, defaultCombo string, h input.Handler) error
	DeregisterBind func(identifier string) bool
}

// V2 adds font receivers and user notices.
type V2 struct {
	V1

	SubscribeFonts   func(identifier string, fn fonts.Receiver) (fonts.Token, error)
	UnsubscribeFonts func(tok fonts.Token) bool

	// Notify shows a short message to the user.
	Notify func(message string) bool
}

// V3 adds the quick access bar.
type V3 struct {
	V2

	AddShortcut       func(s quickaccess.Shortcut) error
	RemoveShortcut    func(identifier string) bool
	AddContextItem    func(item quickaccess.ContextItem) error
	RemoveContextItem func(identifier string) bool
}
