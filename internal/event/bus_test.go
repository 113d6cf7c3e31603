package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSubscribeRaise(t *testing.T) {
	b := NewBus()

	var got []any
	_, err := b.SubscribeHost("EV_TEST", func(name string, payload any) {
		assert.Equal(t, "EV_TEST", name)
		got = append(got, payload)
	})
	require.NoError(t, err)

	b.Raise("EV_TEST", 1)
	b.Raise("EV_OTHER", 2)
	b.Raise("EV_TEST", 3)

	assert.Equal(t, []any{1, 3}, got)
	assert.Equal(t, uint64(3), b.Stats().EventsRaised)
}

func TestBusSubscribeValidation(t *testing.T) {
	b := NewBus()

	_, err := b.SubscribeHost("", func(string, any) {})
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = b.SubscribeHost("EV", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()

	calls := 0
	sub, err := b.SubscribeHost("EV", func(string, any) { calls++ })
	require.NoError(t, err)

	assert.True(t, b.Unsubscribe(sub))
	assert.False(t, b.Unsubscribe(sub))

	b.Raise("EV", nil)
	assert.Zero(t, calls)
}

func TestBusHandlerPanicRecovered(t *testing.T) {
	var recovered any
	b := NewBus(WithPanicHandler(func(_ string, r any) { recovered = r }))

	after := false
	_, _ = b.SubscribeHost("EV", func(string, any) { panic("boom") })
	_, _ = b.SubscribeHost("EV", func(string, any) { after = true })

	b.Raise("EV", nil)

	assert.Equal(t, "boom", recovered)
	assert.True(t, after, "later handlers still run")
	assert.Equal(t, uint64(1), b.Stats().HandlerPanics)
}

func TestBusCleanupReferences(t *testing.T) {
	b := NewBus()
	noop := func(string, any) {}

	_, _ = b.Subscribe("EV_A", 0x1000, noop)
	_, _ = b.Subscribe("EV_B", 0x1fff, noop)
	_, _ = b.Subscribe("EV_B", 0x3000, noop)
	_, _ = b.SubscribeHost("EV_A", noop)

	assert.Equal(t, uint32(2), b.CleanupReferences(0x1000, 0x2000))
	assert.Zero(t, b.CleanupReferences(0x1000, 0x2000))
	assert.Equal(t, 2, b.Stats().Subscriptions)
	assert.Equal(t, "events", b.Name())
}
