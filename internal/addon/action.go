package addon

import (
	"sort"
	"strings"
)

// Verb is a queued lifecycle action.
type Verb int

// Queue verbs.
const (
	VerbLoad Verb = iota + 1
	VerbUnload
	VerbUninstall
	VerbReload
	// VerbFreeOnly releases the handle after a background unload.
	VerbFreeOnly
	// VerbFreeThenLoad releases the handle and loads the file again.
	VerbFreeThenLoad
)

// String returns the verb name.
func (v Verb) String() string {
	switch v {
	case VerbLoad:
		return "load"
	case VerbUnload:
		return "unload"
	case VerbUninstall:
		return "uninstall"
	case VerbReload:
		return "reload"
	case VerbFreeOnly:
		return "free"
	case VerbFreeThenLoad:
		return "free-then-load"
	default:
		return "unknown"
	}
}

// isFree reports whether v is a follow-up of a background unload.
func (v Verb) isFree() bool {
	return v == VerbFreeOnly || v == VerbFreeThenLoad
}

// ParseVerb maps a user-facing verb name to its value. Free verbs are
// internal and not accepted.
func ParseVerb(s string) (Verb, bool) {
	switch strings.ToLower(s) {
	case "load":
		return VerbLoad, true
	case "unload":
		return VerbUnload, true
	case "uninstall":
		return VerbUninstall, true
	case "reload":
		return VerbReload, true
	default:
		return 0, false
	}
}

// Action is a verb applied to a path.
type Action struct {
	Path string
	Verb Verb
}

// ActionQueue holds at most one pending verb per path; a later Push for the
// same path replaces the earlier verb, except that a pending free verb is
// only replaced by another free verb. It is not safe for concurrent use;
// the Manager guards it with its lock.
type ActionQueue struct {
	pending map[string]Verb
}

// NewActionQueue creates an empty queue.
func NewActionQueue() *ActionQueue {
	return &ActionQueue{pending: make(map[string]Verb)}
}

// Push sets the pending verb for path. It reports false when a pending
// free verb kept v out.
func (q *ActionQueue) Push(path string, v Verb) bool {
	if cur, ok := q.pending[path]; ok && cur.isFree() && !v.isFree() {
		return false
	}
	q.pending[path] = v
	return true
}

// Peek returns the pending verb for path.
func (q *ActionQueue) Peek(path string) (Verb, bool) {
	v, ok := q.pending[path]
	return v, ok
}

// Len returns the number of pending actions.
func (q *ActionQueue) Len() int {
	return len(q.pending)
}

// Drain removes every pending action and returns them sorted by path.
func (q *ActionQueue) Drain() []Action {
	if len(q.pending) == 0 {
		return nil
	}
	out := make([]Action, 0, len(q.pending))
	for p, v := range q.pending {
		out = append(out, Action{Path: p, Verb: v})
	}
	q.pending = make(map[string]Verb)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
