package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dshills/addonhost/internal/addon"
	"github.com/dshills/addonhost/internal/capability"
)

// Multi dispatches to the loader registered for a file's extension.
type Multi struct {
	byExt map[string]addon.ModuleLoader
	exts  []string
}

var _ addon.ModuleLoader = (*Multi)(nil)

// NewMulti combines loaders. When two loaders claim an extension the first
// one wins.
func NewMulti(loaders ...addon.ModuleLoader) *Multi {
	m := &Multi{byExt: make(map[string]addon.ModuleLoader)}
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			ext = strings.ToLower(ext)
			if _, taken := m.byExt[ext]; taken {
				continue
			}
			m.byExt[ext] = l
			m.exts = append(m.exts, ext)
		}
	}
	return m
}

type multiHandle struct {
	addon.Handle
	owner addon.ModuleLoader
}

func (m *Multi) unwrap(h addon.Handle) (*multiHandle, bool) {
	mh, ok := h.(*multiHandle)
	return mh, ok
}

// Load maps path with the loader for its extension.
func (m *Multi) Load(path string) (addon.Handle, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := m.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%q: %w", ext, ErrUnsupportedExtension)
	}
	h, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	return &multiHandle{Handle: h, owner: l}, nil
}

// Unload releases h with the loader that created it.
func (m *Multi) Unload(h addon.Handle) error {
	mh, ok := m.unwrap(h)
	if !ok {
		return ErrForeignHandle
	}
	return mh.owner.Unload(mh.Handle)
}

// ResolveEntry resolves the entry with the owning loader.
func (m *Multi) ResolveEntry(h addon.Handle) (addon.DefinitionFactory, bool) {
	mh, ok := m.unwrap(h)
	if !ok {
		return nil, false
	}
	return mh.owner.ResolveEntry(mh.Handle)
}

// AddressRange asks the owning loader for the module range.
func (m *Multi) AddressRange(h addon.Handle) capability.AddressRange {
	mh, ok := m.unwrap(h)
	if !ok {
		return capability.AddressRange{}
	}
	return mh.owner.AddressRange(mh.Handle)
}

// Tagger returns the owning loader's tagger.
func (m *Multi) Tagger(h addon.Handle) capability.Tagger {
	mh, ok := m.unwrap(h)
	if !ok {
		return capability.CodePointer
	}
	return mh.owner.Tagger(mh.Handle)
}

// Extensions returns every handled extension in registration order.
func (m *Multi) Extensions() []string {
	out := make([]string, len(m.exts))
	copy(out, m.exts)
	return out
}
