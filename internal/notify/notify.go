// Package notify provides the queue of short user-visible notices the
// host shows as toasts. Notices carry a key; a notice is not queued again
// while one with the same key is still pending.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Severity classifies a notice.
type Severity int

const (
	// SeverityInfo is a plain informational notice.
	SeverityInfo Severity = iota

	// SeverityWarning asks for the user's attention.
	SeverityWarning

	// SeverityError reports a failed user action.
	SeverityError
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Notice is a single queued message.
type Notice struct {
	ID       uuid.UUID `json:"id"`
	Key      string    `json:"key"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// Observer is called for every newly queued notice.
type Observer func(n Notice)

// Queue holds pending notices.
type Queue struct {
	mu        sync.Mutex
	pending   []Notice
	keys      map[string]struct{}
	observers []Observer
	limit     int
	logger    *logrus.Entry
	now       func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger mirrors every notice to the log.
func WithLogger(l *logrus.Entry) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithLimit caps the number of pending notices; the oldest are dropped.
func WithLimit(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.limit = n
		}
	}
}

// NewQueue creates an empty notice queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		keys:  make(map[string]struct{}),
		limit: 64,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Notify queues an informational notice.
func (q *Queue) Notify(key, message string) bool {
	return q.Post(SeverityInfo, key, message)
}

// Warn queues a warning notice.
func (q *Queue) Warn(key, message string) bool {
	return q.Post(SeverityWarning, key, message)
}

// Post queues a notice unless one with the same key is pending. An empty key
// is never deduplicated. Returns true if the notice was queued.
func (q *Queue) Post(sev Severity, key, message string) bool {
	q.mu.Lock()
	if key != "" {
		if _, dup := q.keys[key]; dup {
			q.mu.Unlock()
			return false
		}
		q.keys[key] = struct{}{}
	}
	n := Notice{
		ID:       uuid.New(),
		Key:      key,
		Severity: sev,
		Message:  message,
		Time:     q.now(),
	}
	q.pending = append(q.pending, n)
	for len(q.pending) > q.limit {
		delete(q.keys, q.pending[0].Key)
		q.pending = q.pending[1:]
	}
	observers := make([]Observer, len(q.observers))
	copy(observers, q.observers)
	q.mu.Unlock()

	if q.logger != nil {
		q.logger.WithFields(logrus.Fields{"key": key, "severity": sev.String()}).Info(message)
	}
	for _, o := range observers {
		o(n)
	}
	return true
}

// Observe registers o for newly queued notices.
func (q *Queue) Observe(o Observer) {
	q.mu.Lock()
	q.observers = append(q.observers, o)
	q.mu.Unlock()
}

// Pending returns a copy of the queued notices, oldest first.
func (q *Queue) Pending() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Notice, len(q.pending))
	copy(out, q.pending)
	return out
}

// Drain removes and returns every queued notice.
func (q *Queue) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.pending
	q.pending = nil
	q.keys = make(map[string]struct{})
	return out
}

// Dismiss removes the pending notice with key. Returns false if none.
func (q *Queue) Dismiss(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.keys[key]; !ok {
		return false
	}
	delete(q.keys, key)
	kept := q.pending[:0]
	for _, n := range q.pending {
		if n.Key != key {
			kept = append(kept, n)
		}
	}
	q.pending = kept
	return true
}
