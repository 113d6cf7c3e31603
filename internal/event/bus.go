package event

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/dshills/addonhost/internal/refs"
)

// Handler receives a raised event.
type Handler func(name string, payload any)

// Subscription identifies a registered handler.
type Subscription struct {
	ID   refs.ID
	Name string
}

// Stats contains bus counters.
type Stats struct {
	EventsRaised     uint64
	HandlersExecuted uint64
	HandlerPanics    uint64
	Subscriptions    int
}

// Bus dispatches named events to subscribers.
type Bus struct {
	subs   cmap.ConcurrentMap[string, *refs.Table[Handler]]
	config busConfig

	eventsRaised     atomic.Uint64
	handlersExecuted atomic.Uint64
	handlerPanics    atomic.Uint64
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Bus{
		subs:   cmap.New[*refs.Table[Handler]](),
		config: config,
	}
}

// Subscribe registers h for events called name. addr is the address the
// handler is attributed to; host-owned subscribers pass 0.
func (b *Bus) Subscribe(name string, addr uintptr, h Handler) (Subscription, error) {
	if name == "" {
		return Subscription{}, ErrInvalidName
	}
	if h == nil {
		return Subscription{}, ErrNilHandler
	}

	tbl := b.subs.Upsert(name, nil, func(exist bool, inMap, _ *refs.Table[Handler]) *refs.Table[Handler] {
		if exist {
			return inMap
		}
		return refs.NewTable[Handler]()
	})
	return Subscription{ID: tbl.Add(addr, h), Name: name}, nil
}

// SubscribeHost registers a host-owned handler.
func (b *Bus) SubscribeHost(name string, h Handler) (Subscription, error) {
	return b.Subscribe(name, 0, h)
}

// Unsubscribe removes a subscription. Returns false if it was not found.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	tbl, ok := b.subs.Get(sub.Name)
	if !ok {
		return false
	}
	return tbl.Remove(sub.ID)
}

// Raise delivers payload to every subscriber of name.
func (b *Bus) Raise(name string, payload any) {
	b.eventsRaised.Add(1)

	tbl, ok := b.subs.Get(name)
	if !ok {
		return
	}
	for _, e := range tbl.Snapshot() {
		b.invoke(name, e.Value, payload)
	}
}

func (b *Bus) invoke(name string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			b.config.logger.WithField("event", name).
				WithField("stack", string(debug.Stack())).
				Error(fmt.Sprintf("event handler panicked: %v", r))
			if b.config.panicHandler != nil {
				b.config.panicHandler(name, r)
			}
		}
	}()
	b.handlersExecuted.Add(1)
	h(name, payload)
}

// Name identifies the bus in reference cleanup reports.
func (b *Bus) Name() string {
	return "events"
}

// CleanupReferences removes every subscriber attributed to an address in
// [start, end) and returns how many were removed.
func (b *Bus) CleanupReferences(start, end uintptr) uint32 {
	var n uint32
	for item := range b.subs.IterBuffered() {
		n += item.Val.Purge(start, end)
	}
	return n
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	var count int
	for item := range b.subs.IterBuffered() {
		count += item.Val.Len()
	}
	return Stats{
		EventsRaised:     b.eventsRaised.Load(),
		HandlersExecuted: b.handlersExecuted.Load(),
		HandlerPanics:    b.handlerPanics.Load(),
		Subscriptions:    count,
	}
}
