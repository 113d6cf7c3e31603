package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/addon"
	"github.com/dshills/addonhost/internal/capability"
)

// Native loads addons built as Go plugins. A plugin stays mapped for the
// life of the process, so every native addon is forced to load locked.
type Native struct {
	log      *logrus.Entry
	mapsPath string
	open     func(path string) (symbolTable, error)
}

var _ addon.ModuleLoader = (*Native)(nil)

// symbolTable is the part of *plugin.Plugin the loader uses.
type symbolTable interface {
	Lookup(name string) (plugin.Symbol, error)
}

// NativeOption configures a Native loader.
type NativeOption func(*Native)

// WithNativeLogger sets the loader's logger.
func WithNativeLogger(l *logrus.Entry) NativeOption {
	return func(n *Native) {
		if l != nil {
			n.log = l
		}
	}
}

// WithMapsPath sets the process memory map read to find module ranges.
func WithMapsPath(path string) NativeOption {
	return func(n *Native) {
		n.mapsPath = path
	}
}

// NewNative creates a Go plugin loader.
func NewNative(opts ...NativeOption) *Native {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	n := &Native{
		log:      logrus.NewEntry(l),
		mapsPath: "/proc/self/maps",
		open: func(path string) (symbolTable, error) {
			return plugin.Open(path)
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type nativeHandle struct {
	path     string
	resolved string
	syms     symbolTable
	rng      capability.AddressRange
}

func (h *nativeHandle) Path() string { return h.path }

// Load opens the plugin at path.
func (n *Native) Load(path string) (addon.Handle, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, err
	}
	if resolved, err = filepath.Abs(resolved); err != nil {
		return nil, err
	}

	syms, err := n.open(resolved)
	if err != nil {
		return nil, fmt.Errorf("open plugin: %w", err)
	}

	h := &nativeHandle{path: path, resolved: resolved, syms: syms}
	if rng, err := n.rangeOf(resolved); err != nil {
		n.log.WithError(err).WithField("path", path).Debug("module range unknown; reference cleanup disabled")
	} else {
		h.rng = rng
	}
	return h, nil
}

func (n *Native) rangeOf(path string) (capability.AddressRange, error) {
	f, err := os.Open(n.mapsPath)
	if err != nil {
		return capability.AddressRange{}, err
	}
	defer f.Close()
	return parseMaps(f, path)
}

// Unload forgets the handle. The plugin itself cannot be unmapped.
func (n *Native) Unload(h addon.Handle) error {
	if _, ok := h.(*nativeHandle); !ok {
		return ErrForeignHandle
	}
	return nil
}

// ResolveEntry looks up GetAddonDef.
func (n *Native) ResolveEntry(h addon.Handle) (addon.DefinitionFactory, bool) {
	nh, ok := h.(*nativeHandle)
	if !ok {
		return nil, false
	}
	sym, err := nh.syms.Lookup(EntrySymbol)
	if err != nil {
		return nil, false
	}

	var fn func() *addon.Definition
	switch f := sym.(type) {
	case func() *addon.Definition:
		fn = f
	case *func() *addon.Definition:
		fn = *f
	case addon.DefinitionFactory:
		fn = f
	case *addon.DefinitionFactory:
		fn = *f
	default:
		n.log.WithField("path", nh.path).Warnf("%s has unexpected type %T", EntrySymbol, sym)
		return nil, false
	}
	if fn == nil {
		return nil, false
	}

	return func() *addon.Definition {
		def := fn()
		if def != nil {
			def.Flags |= addon.FlagHotloadDisabled
		}
		return def
	}, true
}

// AddressRange returns the range the plugin is mapped at.
func (n *Native) AddressRange(h addon.Handle) capability.AddressRange {
	if nh, ok := h.(*nativeHandle); ok {
		return nh.rng
	}
	return capability.AddressRange{}
}

// Tagger tags callbacks with their code address.
func (n *Native) Tagger(addon.Handle) capability.Tagger {
	return capability.CodePointer
}

// Extensions returns the file extensions handled by the native loader.
func (n *Native) Extensions() []string {
	return []string{".so"}
}
