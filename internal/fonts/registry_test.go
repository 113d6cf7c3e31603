package fonts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPublishSubscribe(t *testing.T) {
	r := NewRegistry()

	var got []Font
	_, err := r.Subscribe(0, "FONT_UI", func(f Font) { got = append(got, f) })
	require.NoError(t, err)

	r.Publish(Font{Identifier: "FONT_BIG", Size: 24})
	r.Publish(Font{Identifier: "FONT_UI", Size: 13})

	require.Len(t, got, 1)
	assert.Equal(t, float32(13), got[0].Size)
}

func TestRegistrySubscribeAfterPublish(t *testing.T) {
	r := NewRegistry()
	r.Publish(Font{Identifier: "FONT_UI", Size: 13})

	called := false
	_, err := r.Subscribe(0, "FONT_UI", func(Font) { called = true })
	require.NoError(t, err)
	assert.True(t, called)

	_, err = r.Subscribe(0, "FONT_UI", nil)
	assert.ErrorIs(t, err, ErrNilReceiver)
}

func TestRegistryCleanupReferences(t *testing.T) {
	r := NewRegistry()
	noop := func(Font) {}
	_, _ = r.Subscribe(0x100, "A", noop)
	tok, _ := r.Subscribe(0x900, "A", noop)

	assert.Equal(t, uint32(1), r.CleanupReferences(0x100, 0x200))
	assert.Zero(t, r.CleanupReferences(0x100, 0x200))
	assert.Equal(t, 1, r.Receivers())
	assert.True(t, r.Unsubscribe(tok))
}
