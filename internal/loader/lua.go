package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/addonhost/internal/addon"
	"github.com/dshills/addonhost/internal/capability"
	"github.com/dshills/addonhost/internal/event"
	"github.com/dshills/addonhost/internal/fonts"
	"github.com/dshills/addonhost/internal/render"
)

// EntrySymbol is the global every addon exports.
const EntrySymbol = "GetAddonDef"

// Defaults for Lua modules.
const (
	DefaultCallTimeout = 5 * time.Second

	// Each module gets a synthetic address range of this size. Ranges are
	// handed out upwards from luaRangeBase and never reused.
	luaRangeSize = 1 << 16
	luaRangeBase = 1 << 30
)

// Lua loads addons written in Lua.
type Lua struct {
	log     *logrus.Entry
	timeout time.Duration

	mu   sync.Mutex
	next uintptr
}

var _ addon.ModuleLoader = (*Lua)(nil)

// LuaOption configures a Lua loader.
type LuaOption func(*Lua)

// WithLuaLogger sets the logger used for errors raised by module callbacks.
func WithLuaLogger(l *logrus.Entry) LuaOption {
	return func(x *Lua) {
		if l != nil {
			x.log = l
		}
	}
}

// WithCallTimeout bounds every call into a module.
func WithCallTimeout(d time.Duration) LuaOption {
	return func(x *Lua) {
		x.timeout = d
	}
}

// NewLua creates a Lua loader.
func NewLua(opts ...LuaOption) *Lua {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	x := &Lua{
		log:     logrus.NewEntry(l),
		timeout: DefaultCallTimeout,
		next:    luaRangeBase,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// luaHandle is one loaded script with its own Lua state.
//
// gopher-lua states are not goroutine-safe; mu serializes every call into
// the state. Host actions a script triggers while it runs (raising events,
// the immediate delivery of an already published font) are queued in
// deferred and run after mu is released, so handlers that call back into
// the same module do not deadlock.
type luaHandle struct {
	path    string
	log     *logrus.Entry
	timeout time.Duration
	rng     capability.AddressRange
	tags    atomic.Uint64

	mu     sync.Mutex
	L      *lua.LState
	closed bool

	// Registrations made through the capability table, by token. Only
	// touched while mu is held.
	subs    map[string]event.Subscription
	renders map[string]render.Token
	fonts   map[string]fonts.Token

	deferMu  sync.Mutex
	deferred []func()
}

func (h *luaHandle) Path() string { return h.path }

// Load compiles and runs the script at path in a fresh sandboxed state.
func (x *Lua) Load(path string) (addon.Handle, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	x.mu.Lock()
	start := x.next
	x.next += luaRangeSize
	x.mu.Unlock()

	h := &luaHandle{
		path:    path,
		log:     x.log.WithField("module", path),
		timeout: x.timeout,
		rng:     capability.AddressRange{Start: start, End: start + luaRangeSize},
		L:       L,
		subs:    make(map[string]event.Subscription),
		renders: make(map[string]render.Token),
		fonts:   make(map[string]fonts.Token),
	}
	if err := h.do(func(L *lua.LState) error { return L.DoString(string(src)) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("run %s: %w", path, err)
	}
	return h, nil
}

// Unload closes the module's state. Callbacks still registered with host
// subsystems become no-ops.
func (x *Lua) Unload(h addon.Handle) error {
	lh, ok := h.(*luaHandle)
	if !ok {
		return ErrForeignHandle
	}
	lh.mu.Lock()
	defer lh.mu.Unlock()
	if lh.closed {
		return nil
	}
	lh.closed = true
	lh.L.Close()
	return nil
}

// ResolveEntry returns a factory calling the script's GetAddonDef.
func (x *Lua) ResolveEntry(h addon.Handle) (addon.DefinitionFactory, bool) {
	lh, ok := h.(*luaHandle)
	if !ok {
		return nil, false
	}
	var fn *lua.LFunction
	_ = lh.do(func(L *lua.LState) error {
		fn, _ = L.GetGlobal(EntrySymbol).(*lua.LFunction)
		return nil
	})
	if fn == nil {
		return nil, false
	}
	return func() *addon.Definition {
		var def *addon.Definition
		err := lh.do(func(L *lua.LState) error {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
				return err
			}
			ret := L.Get(-1)
			L.Pop(1)
			tbl, ok := ret.(*lua.LTable)
			if !ok {
				return fmt.Errorf("%s returned %s, want table", EntrySymbol, ret.Type())
			}
			var err error
			def, err = lh.definition(tbl)
			return err
		})
		if err != nil {
			lh.log.WithError(err).Warn("addon definition rejected")
			return nil
		}
		return def
	}, true
}

// AddressRange returns the module's synthetic range.
func (x *Lua) AddressRange(h addon.Handle) capability.AddressRange {
	if lh, ok := h.(*luaHandle); ok {
		return lh.rng
	}
	return capability.AddressRange{}
}

// Tagger hands out successive addresses inside the module's range.
func (x *Lua) Tagger(h addon.Handle) capability.Tagger {
	lh, ok := h.(*luaHandle)
	if !ok {
		return capability.CodePointer
	}
	return capability.TaggerFunc(func(any) uintptr {
		n := lh.tags.Add(1) - 1
		return lh.rng.Start + uintptr(n%uint64(lh.rng.Size()))
	})
}

// Extensions returns the file extensions handled by the Lua loader.
func (x *Lua) Extensions() []string {
	return []string{".lua"}
}

// do runs fn against the module state and then the host actions fn queued.
func (h *luaHandle) do(fn func(L *lua.LState) error) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	var cancel context.CancelFunc
	if h.timeout > 0 {
		var ctx context.Context
		ctx, cancel = context.WithTimeout(context.Background(), h.timeout)
		h.L.SetContext(ctx)
	}
	err := recoverLua(func() error { return fn(h.L) })
	if cancel != nil {
		h.L.RemoveContext()
		cancel()
	}
	h.mu.Unlock()

	h.flush()
	return err
}

// later queues fn to run once the current call into the module returns.
func (h *luaHandle) later(fn func()) {
	h.deferMu.Lock()
	h.deferred = append(h.deferred, fn)
	h.deferMu.Unlock()
}

func (h *luaHandle) flush() {
	for {
		h.deferMu.Lock()
		queued := h.deferred
		h.deferred = nil
		h.deferMu.Unlock()
		if len(queued) == 0 {
			return
		}
		for _, fn := range queued {
			fn()
		}
	}
}

// callback invokes a Lua function registered with a host subsystem. Errors
// are logged; the host never sees them.
func (h *luaHandle) callback(where string, fn *lua.LFunction, args func(L *lua.LState) []lua.LValue) {
	err := h.do(func(L *lua.LState) error {
		var argv []lua.LValue
		if args != nil {
			argv = args(L)
		}
		return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, argv...)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrHandleClosed):
		h.log.WithField("callback", where).Debug("callback into unloaded module ignored")
	default:
		h.log.WithError(err).WithField("callback", where).Warn("addon callback failed")
	}
}

// call invokes fn with args and reports a Lua error as a Go error.
func (h *luaHandle) call(fn *lua.LFunction, args ...lua.LValue) error {
	return h.do(func(L *lua.LState) error {
		return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	})
}

func recoverLua(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// openSafeLibraries opens the base, table, string and math libraries and
// removes the base functions that reach the filesystem or load code.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}
