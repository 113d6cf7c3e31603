package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDeduplicatesByKey(t *testing.T) {
	q := NewQueue()

	assert.True(t, q.Notify("disabled:1", "Addon disabled until update."))
	assert.False(t, q.Notify("disabled:1", "Addon disabled until update."))
	assert.True(t, q.Notify("", "no key"))
	assert.True(t, q.Notify("", "no key"))

	assert.Len(t, q.Pending(), 3)
}

func TestQueueDrainResetsKeys(t *testing.T) {
	q := NewQueue()
	q.Warn("k", "first")

	drained := q.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, SeverityWarning, drained[0].Severity)
	assert.Empty(t, q.Pending())

	assert.True(t, q.Warn("k", "again"))
}

func TestQueueDismiss(t *testing.T) {
	q := NewQueue()
	q.Notify("a", "A")
	q.Notify("b", "B")

	assert.True(t, q.Dismiss("a"))
	assert.False(t, q.Dismiss("a"))

	p := q.Pending()
	require.Len(t, p, 1)
	assert.Equal(t, "b", p[0].Key)
}

func TestQueueLimit(t *testing.T) {
	q := NewQueue(WithLimit(2))
	q.Notify("1", "one")
	q.Notify("2", "two")
	q.Notify("3", "three")

	p := q.Pending()
	require.Len(t, p, 2)
	assert.Equal(t, "2", p[0].Key)
	assert.True(t, q.Notify("1", "one again"), "dropped key can be queued again")
}

func TestQueueObserver(t *testing.T) {
	q := NewQueue()

	var seen []string
	q.Observe(func(n Notice) { seen = append(seen, n.Message) })
	q.Notify("x", "hello")
	q.Notify("x", "ignored")

	assert.Equal(t, []string{"hello"}, seen)
}
