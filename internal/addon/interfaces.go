package addon

import (
	"context"

	"github.com/dshills/addonhost/internal/capability"
	"github.com/dshills/addonhost/internal/policy"
)

// Handle is an opaque reference to a mapped module.
type Handle interface {
	Path() string
}

// DefinitionFactory is the module's exported entry symbol. It returns the
// module's definition, or nil if the module refuses to load.
type DefinitionFactory func() *Definition

// ModuleLoader maps addon binaries into the process.
type ModuleLoader interface {
	// Load maps the file at path.
	Load(path string) (Handle, error)

	// Unload releases a handle. The module's memory may be unmapped.
	Unload(h Handle) error

	// ResolveEntry looks up the definition factory symbol.
	ResolveEntry(h Handle) (DefinitionFactory, bool)

	// AddressRange reports where the module is mapped.
	AddressRange(h Handle) capability.AddressRange

	// Tagger returns how callbacks registered by the module are attributed
	// to addresses inside its range.
	Tagger(h Handle) capability.Tagger

	// Extensions lists the file extensions this loader accepts.
	Extensions() []string
}

// ReferenceCleaner is implemented by subsystems that hold callbacks
// registered by addons.
type ReferenceCleaner interface {
	// Name identifies the subsystem in leak reports.
	Name() string

	// CleanupReferences drops everything attributed to [start, end) and
	// returns how many entries were dropped.
	CleanupReferences(start, end uintptr) uint32
}

// UpdateRequest describes one addon to check for updates.
type UpdateRequest struct {
	Signature        uint32
	Name             string
	Version          Version
	Provider         UpdateProvider
	UpdateLink       string
	Path             string
	AllowPrereleases bool
}

// UpdateChecker checks for a newer build of an addon and, if one exists,
// downloads it to Path + UpdateSuffix.
type UpdateChecker interface {
	CheckAndMaybeDownload(ctx context.Context, req UpdateRequest) (bool, error)
}

// APIProvider builds the capability tables handed to a module's load
// entry point.
type APIProvider interface {
	// Supports reports whether version can be served.
	Supports(version int) bool

	// Table builds the table for version. Callbacks the module registers
	// through it are tagged with tagger.
	Table(version int, signature uint32, tagger capability.Tagger) (any, error)
}

// PolicyStore persists the load policy.
type PolicyStore interface {
	Load() ([]policy.Entry, error)
	Save(entries []policy.Entry) error
}

// EventRaiser receives lifecycle events.
type EventRaiser interface {
	Raise(name string, payload any)
}

// Notifier shows short messages to the user. Notices with the same key are
// not repeated while pending.
type Notifier interface {
	Notify(key, message string) bool
}

// Lifecycle event names. The payload is the addon signature.
const (
	EventAddonLoaded           = "EV_ADDON_LOADED"
	EventAddonUnloaded         = "EV_ADDON_UNLOADED"
	EventAddonDisabledVolatile = "EV_ADDON_DISABLED_VOLATILE"
)
