package watcher

import (
	"sync"
	"time"
)

// DefaultQuiescence is the quiet period a Debouncer waits for by default.
const DefaultQuiescence = 100 * time.Millisecond

// Debouncer calls fn once after Trigger has not been called for the
// quiescence window. Triggers during the window restart it.
type Debouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	fn     func()
	timer  *time.Timer
	gen    uint64
	closed bool
}

// NewDebouncer creates a debouncer that runs fn on its own goroutine.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultQuiescence
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger starts or restarts the quiescence window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	fn := d.fn
	d.mu.Unlock()

	fn()
}

// Stop cancels any pending window and disables further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Forward triggers d for every signal received on ch until ch is closed.
func (d *Debouncer) Forward(ch <-chan struct{}) {
	for range ch {
		d.Trigger()
	}
}
