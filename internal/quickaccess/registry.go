// Package quickaccess holds the shortcut icons and context menu entries
// addons contribute to the host's quick access bar.
package quickaccess

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/addonhost/internal/refs"
)

// Registry errors.
var (
	ErrExists       = errors.New("quick access entry already exists")
	ErrNotFound     = errors.New("quick access entry not found")
	ErrInvalidEntry = errors.New("quick access entry requires an identifier")
)

// Shortcut is an icon on the quick access bar.
type Shortcut struct {
	Identifier string
	Icon       string
	IconHover  string
	Bind       string
	Tooltip    string

	// OnClick is optional; shortcuts without it toggle Bind.
	OnClick func()
}

// ContextItem is an entry drawn in the context menu of a shortcut.
type ContextItem struct {
	Identifier string
	Target     string
	Render     func()
}

// entry is the tagged value stored per identifier.
type entry struct {
	shortcut *Shortcut
	item     *ContextItem
}

// Registry stores shortcuts and context menu items.
type Registry struct {
	mu      sync.Mutex
	entries *refs.Table[entry]
	byID    map[string]refs.ID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: refs.NewTable[entry](),
		byID:    make(map[string]refs.ID),
	}
}

// AddShortcut registers a shortcut attributed to addr.
func (r *Registry) AddShortcut(addr uintptr, s Shortcut) error {
	if s.Identifier == "" {
		return ErrInvalidEntry
	}
	return r.add(addr, s.Identifier, entry{shortcut: &s})
}

// AddContextItem registers a context menu item attributed to addr.
func (r *Registry) AddContextItem(addr uintptr, item ContextItem) error {
	if item.Identifier == "" || item.Render == nil {
		return ErrInvalidEntry
	}
	return r.add(addr, item.Identifier, entry{item: &item})
}

func (r *Registry) add(addr uintptr, identifier string, e entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byID[identifier]; ok {
		if _, live := r.entries.Get(id); live {
			return fmt.Errorf("%q: %w", identifier, ErrExists)
		}
	}
	r.byID[identifier] = r.entries.Add(addr, e)
	return nil
}

// Remove deletes the shortcut or context item with the given identifier.
func (r *Registry) Remove(identifier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byID[identifier]
	if !ok {
		return false
	}
	delete(r.byID, identifier)
	return r.entries.Remove(id)
}

// Click invokes the shortcut's OnClick.
func (r *Registry) Click(identifier string) error {
	r.mu.Lock()
	var s *Shortcut
	if id, ok := r.byID[identifier]; ok {
		if e, live := r.entries.Get(id); live {
			s = e.Value.shortcut
		}
	}
	r.mu.Unlock()

	if s == nil {
		return fmt.Errorf("%q: %w", identifier, ErrNotFound)
	}
	if s.OnClick != nil {
		s.OnClick()
	}
	return nil
}

// Shortcuts returns every shortcut sorted by identifier.
func (r *Registry) Shortcuts() []Shortcut {
	var out []Shortcut
	for _, e := range r.entries.Snapshot() {
		if e.Value.shortcut != nil {
			out = append(out, *e.Value.shortcut)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// RenderContextMenu draws every item attached to target, or every item
// without a target when target is empty.
func (r *Registry) RenderContextMenu(target string) int {
	n := 0
	for _, e := range r.entries.Snapshot() {
		if it := e.Value.item; it != nil && it.Target == target {
			it.Render()
			n++
		}
	}
	return n
}

// Name identifies the registry in reference cleanup reports.
func (r *Registry) Name() string {
	return "quick access"
}

// CleanupReferences removes entries attributed to [start, end).
func (r *Registry) CleanupReferences(start, end uintptr) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.entries.Purge(start, end)
	if n > 0 {
		for ident, id := range r.byID {
			if _, live := r.entries.Get(id); !live {
				delete(r.byID, ident)
			}
		}
	}
	return n
}
