// Package fonts tracks the font receivers addons subscribe with. Receivers
// are told whenever the host publishes a font.
package fonts

import (
	"errors"
	"sync"

	"github.com/dshills/addonhost/internal/refs"
)

// ErrNilReceiver is returned when a nil receiver is registered.
var ErrNilReceiver = errors.New("font receiver cannot be nil")

// Font describes a font published by the host.
type Font struct {
	Identifier string
	Size       float32
	Path       string
}

// Receiver is told about a published font.
type Receiver func(f Font)

// Token identifies a subscription.
type Token = refs.ID

// Registry stores published fonts and their receivers.
type Registry struct {
	mu        sync.RWMutex
	fonts     map[string]Font
	receivers *refs.Table[*pending]
}

// pending pairs a receiver with the identifier it waits for.
type pending struct {
	identifier string
	fn         Receiver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fonts:     make(map[string]Font),
		receivers: refs.NewTable[*pending](),
	}
}

// Subscribe registers fn for fonts named identifier. If the font is already
// published fn is called immediately.
func (r *Registry) Subscribe(addr uintptr, identifier string, fn Receiver) (Token, error) {
	if fn == nil {
		return Token{}, ErrNilReceiver
	}
	tok := r.receivers.Add(addr, &pending{identifier: identifier, fn: fn})

	r.mu.RLock()
	f, ok := r.fonts[identifier]
	r.mu.RUnlock()
	if ok {
		fn(f)
	}
	return tok, nil
}

// Unsubscribe removes a receiver.
func (r *Registry) Unsubscribe(tok Token) bool {
	return r.receivers.Remove(tok)
}

// Publish stores f and tells every receiver waiting for its identifier.
func (r *Registry) Publish(f Font) {
	r.mu.Lock()
	r.fonts[f.Identifier] = f
	r.mu.Unlock()

	for _, e := range r.receivers.Snapshot() {
		if e.Value.identifier == f.Identifier {
			e.Value.fn(f)
		}
	}
}

// Receivers returns the number of subscribed receivers.
func (r *Registry) Receivers() int {
	return r.receivers.Len()
}

// Name identifies the registry in reference cleanup reports.
func (r *Registry) Name() string {
	return "font receivers"
}

// CleanupReferences removes receivers attributed to [start, end).
func (r *Registry) CleanupReferences(start, end uintptr) uint32 {
	return r.receivers.Purge(start, end)
}
