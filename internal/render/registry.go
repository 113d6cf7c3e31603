// Package render keeps the per-frame callbacks registered for each render
// stage. The host calls Dispatch once per stage per frame.
package render

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dshills/addonhost/internal/refs"
)

// ErrNilCallback is returned when a nil callback is registered.
var ErrNilCallback = errors.New("render callback cannot be nil")

// Stage selects when in the frame a callback runs.
type Stage int

// Render stages in frame order.
const (
	StagePreRender Stage = iota
	StageRender
	StagePostRender
	StageOptionsRender
)

// Stages lists every stage in dispatch order.
var Stages = []Stage{StagePreRender, StageRender, StagePostRender, StageOptionsRender}

// String returns a string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StagePreRender:
		return "pre-render"
	case StageRender:
		return "render"
	case StagePostRender:
		return "post-render"
	case StageOptionsRender:
		return "options-render"
	default:
		return "unknown"
	}
}

// Callback is a per-frame render callback.
type Callback func()

// Token identifies a registered callback.
type Token struct {
	ID    refs.ID
	Stage Stage
}

// Registry stores render callbacks per stage.
type Registry struct {
	stages map[Stage]*refs.Table[Callback]
	logger *logrus.Entry
	frames atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Registry{
		stages: make(map[Stage]*refs.Table[Callback], len(Stages)),
		logger: logger,
	}
	for _, s := range Stages {
		r.stages[s] = refs.NewTable[Callback]()
	}
	return r
}

// Register adds fn to stage, attributed to addr.
func (r *Registry) Register(addr uintptr, stage Stage, fn Callback) (Token, error) {
	if fn == nil {
		return Token{}, ErrNilCallback
	}
	tbl, ok := r.stages[stage]
	if !ok {
		return Token{}, fmt.Errorf("unknown render stage %d", stage)
	}
	return Token{ID: tbl.Add(addr, fn), Stage: stage}, nil
}

// Deregister removes a previously registered callback.
func (r *Registry) Deregister(tok Token) bool {
	tbl, ok := r.stages[tok.Stage]
	if !ok {
		return false
	}
	return tbl.Remove(tok.ID)
}

// Count returns the number of callbacks registered for stage.
func (r *Registry) Count(stage Stage) int {
	tbl, ok := r.stages[stage]
	if !ok {
		return 0
	}
	return tbl.Len()
}

// Dispatch runs every callback of stage. A panicking callback is logged and
// skipped.
func (r *Registry) Dispatch(stage Stage) {
	tbl, ok := r.stages[stage]
	if !ok {
		return
	}
	for _, e := range tbl.Snapshot() {
		r.call(stage, e)
	}
}

// Frame dispatches every stage in order.
func (r *Registry) Frame() {
	r.frames.Add(1)
	for _, s := range Stages {
		r.Dispatch(s)
	}
}

// Frames returns how many frames were dispatched.
func (r *Registry) Frames() uint64 {
	return r.frames.Load()
}

func (r *Registry) call(stage Stage, e refs.Entry[Callback]) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logrus.Fields{
				"stage": stage.String(),
				"addr":  fmt.Sprintf("%#x", e.Addr),
				"stack": string(debug.Stack()),
			}).Errorf("render callback panicked: %v", rec)
		}
	}()
	e.Value()
}

// Name identifies the registry in reference cleanup reports.
func (r *Registry) Name() string {
	return "render callbacks"
}

// CleanupReferences removes callbacks attributed to [start, end).
func (r *Registry) CleanupReferences(start, end uintptr) uint32 {
	var n uint32
	for _, tbl := range r.stages {
		n += tbl.Purge(start, end)
	}
	return n
}
