// Package input keeps the registry of named input binds. Each bind maps an
// identifier to a key combination and a handler; binds registered by addons
// are tagged so they can be purged when the addon's module is unloaded.
package input

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/addonhost/internal/refs"
)

// Registry errors.
var (
	ErrBindExists   = errors.New("input bind already registered")
	ErrBindNotFound = errors.New("input bind not found")
	ErrNilHandler   = errors.New("input bind handler cannot be nil")
)

// Handler is invoked when a bind is triggered. release is true on key up.
type Handler func(identifier string, release bool)

// Bind is a registered input bind.
type Bind struct {
	Identifier string
	Combo      Combo
	Handler    Handler
}

// Registry stores input binds by identifier.
type Registry struct {
	mu    sync.Mutex
	binds *refs.Table[*Bind]
	byID  map[string]refs.ID

	// combos remembers user-assigned combinations across re-registration.
	combos map[string]Combo
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		binds:  refs.NewTable[*Bind](),
		byID:   make(map[string]refs.ID),
		combos: make(map[string]Combo),
	}
}

// Register adds a bind. If the identifier was previously bound by the user,
// the remembered combination wins over defaultCombo. An empty defaultCombo
// registers the bind unassigned.
func (r *Registry) Register(addr uintptr, identifier, defaultCombo string, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	combo, err := ParseCombo(defaultCombo)
	if err != nil && !errors.Is(err, ErrEmptyCombo) {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byID[identifier]; ok {
		if _, live := r.binds.Get(id); live {
			return fmt.Errorf("%q: %w", identifier, ErrBindExists)
		}
	}
	if saved, ok := r.combos[identifier]; ok {
		combo = saved
	}
	b := &Bind{Identifier: identifier, Combo: combo, Handler: h}
	r.byID[identifier] = r.binds.Add(addr, b)
	return nil
}

// Deregister removes the bind with the given identifier.
func (r *Registry) Deregister(identifier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byID[identifier]
	if !ok {
		return false
	}
	delete(r.byID, identifier)
	return r.binds.Remove(id)
}

// SetCombo assigns a new combination to an identifier.
func (r *Registry) SetCombo(identifier string, c Combo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.combos[identifier] = c
	if id, ok := r.byID[identifier]; ok {
		if e, live := r.binds.Get(id); live {
			e.Value.Combo = c
		}
	}
}

// Trigger invokes the handler bound to identifier outside the registry lock.
func (r *Registry) Trigger(identifier string, release bool) error {
	r.mu.Lock()
	var b *Bind
	if id, ok := r.byID[identifier]; ok {
		if e, live := r.binds.Get(id); live {
			b = e.Value
		}
	}
	r.mu.Unlock()

	if b == nil {
		return fmt.Errorf("%q: %w", identifier, ErrBindNotFound)
	}
	b.Handler(identifier, release)
	return nil
}

// Lookup returns the identifiers bound to combo, sorted.
func (r *Registry) Lookup(c Combo) []string {
	var ids []string
	for _, e := range r.binds.Snapshot() {
		if e.Value.Combo == c {
			ids = append(ids, e.Value.Identifier)
		}
	}
	sort.Strings(ids)
	return ids
}

// Binds returns a copy of every registered bind sorted by identifier.
func (r *Registry) Binds() []Bind {
	snap := r.binds.Snapshot()
	out := make([]Bind, 0, len(snap))
	for _, e := range snap {
		out = append(out, *e.Value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Name identifies the registry in reference cleanup reports.
func (r *Registry) Name() string {
	return "input binds"
}

// CleanupReferences removes binds whose handler lies in [start, end).
func (r *Registry) CleanupReferences(start, end uintptr) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.binds.Purge(start, end)
	if n > 0 {
		for ident, id := range r.byID {
			if _, live := r.binds.Get(id); !live {
				delete(r.byID, ident)
			}
		}
	}
	return n
}
