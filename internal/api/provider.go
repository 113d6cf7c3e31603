package api

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/addon"
	"github.com/dshills/addonhost/internal/capability"
	"github.com/dshills/addonhost/internal/event"
	"github.com/dshills/addonhost/internal/fonts"
	"github.com/dshills/addonhost/internal/input"
	"github.com/dshills/addonhost/internal/notify"
	"github.com/dshills/addonhost/internal/quickaccess"
	"github.com/dshills/addonhost/internal/render"
)

// Provider errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported capability table version")
	ErrMissingSubsystem   = errors.New("host subsystem not available")
)

// Host bundles the subsystems addons register with.
type Host struct {
	Events      *event.Bus
	Input       *input.Registry
	Render      *render.Registry
	Fonts       *fonts.Registry
	QuickAccess *quickaccess.Registry
	Notify      *notify.Queue
	Log         *logrus.Entry
}

// Cleaners returns the subsystems that hold addon callbacks, in the order
// they should be purged.
func (h Host) Cleaners() []addon.ReferenceCleaner {
	var out []addon.ReferenceCleaner
	if h.Events != nil {
		out = append(out, h.Events)
	}
	if h.Input != nil {
		out = append(out, h.Input)
	}
	if h.Render != nil {
		out = append(out, h.Render)
	}
	if h.Fonts != nil {
		out = append(out, h.Fonts)
	}
	if h.QuickAccess != nil {
		out = append(out, h.QuickAccess)
	}
	return out
}

// Provider hands out capability tables bound to a Host.
type Provider struct {
	host     Host
	versions []int
}

var _ addon.APIProvider = (*Provider)(nil)

// NewProvider creates a provider serving versions, or every version the
// host knows when none are given.
func NewProvider(host Host, versions ...int) *Provider {
	if len(versions) == 0 {
		versions = []int{capability.V1, capability.V2, capability.V3}
	}
	if host.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		host.Log = logrus.NewEntry(l)
	}
	return &Provider{host: host, versions: versions}
}

// Versions returns the served table versions.
func (p *Provider) Versions() []int {
	out := make([]int, len(p.versions))
	copy(out, p.versions)
	return out
}

// Supports reports whether version can be served.
func (p *Provider) Supports(version int) bool {
	return capability.Supported(version, p.versions)
}

// Table builds the table for version. The result is *V1, *V2 or *V3.
func (p *Provider) Table(version int, signature uint32, tagger capability.Tagger) (any, error) {
	if !p.Supports(version) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if err := p.check(version); err != nil {
		return nil, err
	}

	v1 := p.v1(version, signature, tagger)
	if version == capability.V1 {
		return v1, nil
	}
	v2 := p.v2(*v1, tagger)
	if version == capability.V2 {
		return v2, nil
	}
	return p.v3(*v2, tagger), nil
}

func (p *Provider) check(version int) error {
	h := p.host
	missing := func(name string) error {
		return fmt.Errorf("%w: %s (table version %d)", ErrMissingSubsystem, name, version)
	}
	switch {
	case h.Events == nil:
		return missing("events")
	case h.Input == nil:
		return missing("input")
	case h.Render == nil:
		return missing("render")
	}
	if version >= capability.V2 {
		switch {
		case h.Fonts == nil:
			return missing("fonts")
		case h.Notify == nil:
			return missing("notify")
		}
	}
	if version >= capability.V3 && h.QuickAccess == nil {
		return missing("quick access")
	}
	return nil
}

func (p *Provider) v1(version int, signature uint32, tagger capability.Tagger) *V1 {
	h := p.host
	log := h.Log.WithField("addon", addon.SignatureString(signature))

	return &V1{
		Version:   version,
		Signature: signature,
		Log: func(level, message string) {
			lvl, err := logrus.ParseLevel(level)
			if err != nil {
				lvl = logrus.InfoLevel
			}
			log.Log(lvl, message)
		},
		SubscribeEvent: func(name string, fn event.Handler) (event.Subscription, error) {
			return h.Events.Subscribe(name, tagger.Tag(fn), fn)
		},
		UnsubscribeEvent: h.Events.Unsubscribe,
		RaiseEvent:       h.Events.Raise,
		RegisterRender: func(stage render.Stage, fn render.Callback) (render.Token, error) {
			return h.Render.Register(tagger.Tag(fn), stage, fn)
		},
		DeregisterRender: h.Render.Deregister,
		RegisterBind: func(identifier, defaultCombo string, fn input.Handler) error {
			return h.Input.Register(tagger.Tag(fn), identifier, defaultCombo, fn)
		},
		DeregisterBind: h.Input.Deregister,
	}
}

func (p *Provider) v2(base V1, tagger capability.Tagger) *V2 {
	h := p.host
	return &V2{
		V1: base,
		SubscribeFonts: func(identifier string, fn fonts.Receiver) (fonts.Token, error) {
			return h.Fonts.Subscribe(tagger.Tag(fn), identifier, fn)
		},
		UnsubscribeFonts: h.Fonts.Unsubscribe,
		Notify: func(message string) bool {
			return h.Notify.Notify("", message)
		},
	}
}

func (p *Provider) v3(base V2, tagger capability.Tagger) *V3 {
	h := p.host
	return &V3{
		V2: base,
		AddShortcut: func(s quickaccess.Shortcut) error {
			// Shortcuts without a click handler hold no addon code.
			var fn any
			if s.OnClick != nil {
				fn = s.OnClick
			}
			return h.QuickAccess.AddShortcut(tagger.Tag(fn), s)
		},
		RemoveShortcut: h.QuickAccess.Remove,
		AddContextItem: func(item quickaccess.ContextItem) error {
			return h.QuickAccess.AddContextItem(tagger.Tag(item.Render), item)
		},
		RemoveContextItem: h.QuickAccess.Remove,
	}
}
