package watcher

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestDebouncerWaitsForQuiescence(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	d.Trigger()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("fired before quiescence window elapsed")
	}
	d.Trigger()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("retrigger should restart the window")
	}

	time.Sleep(80 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestDebouncerStop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(40 * time.Millisecond)

	if calls.Load() != 0 {
		t.Error("stopped debouncer should not fire")
	}
}

func TestDebouncerDefaultDelay(t *testing.T) {
	d := NewDebouncer(0, func() {})
	if d.delay != DefaultQuiescence {
		t.Errorf("delay = %v, want %v", d.delay, DefaultQuiescence)
	}
}

func TestDebouncerForward(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { calls.Add(1) })
	defer d.Stop()

	ch := make(chan struct{})
	done := make(chan struct{})
	go func() {
		d.Forward(ch)
		close(done)
	}()

	ch <- struct{}{}
	ch <- struct{}{}
	close(ch)
	<-done

	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}
