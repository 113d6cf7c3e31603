// Package refs provides an address-tagged callback table. Host subsystems
// store the callbacks addons register in a Table so the addon manager can
// purge everything a module left behind before its code is unmapped.
package refs

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/addonhost/internal/capability"
)

// ID identifies an entry in a Table.
type ID = uuid.UUID

// Entry is a single registered value and the address it was tagged with.
type Entry[T any] struct {
	ID    ID
	Addr  uintptr
	Value T
}

// Table is an ordered, concurrency-safe set of tagged entries.
// Iteration order is registration order.
type Table[T any] struct {
	mu      sync.RWMutex
	entries map[ID]Entry[T]
	order   []ID
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries: make(map[ID]Entry[T]),
	}
}

// Add stores value tagged with addr and returns its ID.
func (t *Table[T]) Add(addr uintptr, value T) ID {
	id := uuid.New()

	t.mu.Lock()
	t.entries[id] = Entry[T]{ID: id, Addr: addr, Value: value}
	t.order = append(t.order, id)
	t.mu.Unlock()

	return id
}

// Remove deletes the entry with the given ID.
// Returns false if no such entry exists.
func (t *Table[T]) Remove(id ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	t.compactLocked()
	return true
}

// Get returns the entry with the given ID.
func (t *Table[T]) Get(id ID) (Entry[T], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[id]
	return e, ok
}

// Snapshot returns a copy of all entries in registration order.
// Callers may invoke the values without holding the table lock.
func (t *Table[T]) Snapshot() []Entry[T] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry[T], 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id])
	}
	return out
}

// Len returns the number of entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Purge removes every entry whose address lies in [start, end) and returns
// how many were removed.
func (t *Table[T]) Purge(start, end uintptr) uint32 {
	rng := capability.AddressRange{Start: start, End: end}

	t.mu.Lock()
	defer t.mu.Unlock()

	var n uint32
	for id, e := range t.entries {
		if rng.Contains(e.Addr) {
			delete(t.entries, id)
			n++
		}
	}
	if n > 0 {
		t.compactLocked()
	}
	return n
}

// compactLocked drops order slots whose entries are gone.
func (t *Table[T]) compactLocked() {
	kept := t.order[:0]
	for _, id := range t.order {
		if _, ok := t.entries[id]; ok {
			kept = append(kept, id)
		}
	}
	t.order = kept
}
