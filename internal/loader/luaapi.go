package loader

import (
	"fmt"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/addonhost/internal/api"
	"github.com/dshills/addonhost/internal/fonts"
	"github.com/dshills/addonhost/internal/quickaccess"
	"github.com/dshills/addonhost/internal/render"
)

// bindAPI exposes a capability table to the script as a Lua table of
// functions. Must be called with h.mu held.
func (h *luaHandle) bindAPI(L *lua.LState, table any) (*lua.LTable, error) {
	var (
		v1 *api.V1
		v2 *api.V2
		v3 *api.V3
	)
	switch t := table.(type) {
	case *api.V3:
		v3, v2, v1 = t, &t.V2, &t.V2.V1
	case *api.V2:
		v2, v1 = t, &t.V1
	case *api.V1:
		v1 = t
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTable, table)
	}

	mod := L.NewTable()
	mod.RawSetString("version", lua.LNumber(v1.Version))
	mod.RawSetString("signature", lua.LNumber(v1.Signature))
	L.SetFuncs(mod, h.v1Funcs(v1))
	if v2 != nil {
		L.SetFuncs(mod, h.v2Funcs(v2))
	}
	if v3 != nil {
		L.SetFuncs(mod, h.v3Funcs(v3))
	}
	return mod, nil
}

// pushResult pushes true, or nil and the error message.
func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

func parseStage(name string) (render.Stage, bool) {
	for _, s := range render.Stages {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

func (h *luaHandle) v1Funcs(t *api.V1) map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			t.Log(L.CheckString(1), L.CheckString(2))
			return 0
		},
		"subscribe": func(L *lua.LState) int {
			name := L.CheckString(1)
			fn := L.CheckFunction(2)
			sub, err := t.SubscribeEvent(name, func(ev string, payload any) {
				h.callback("event "+ev, fn, func(L *lua.LState) []lua.LValue {
					return []lua.LValue{lua.LString(ev), toLua(L, payload)}
				})
			})
			if err != nil {
				return pushResult(L, err)
			}
			tok := sub.ID.String()
			h.subs[tok] = sub
			L.Push(lua.LString(tok))
			return 1
		},
		"unsubscribe": func(L *lua.LState) int {
			tok := L.CheckString(1)
			sub, ok := h.subs[tok]
			if ok {
				delete(h.subs, tok)
				ok = t.UnsubscribeEvent(sub)
			}
			L.Push(lua.LBool(ok))
			return 1
		},
		"raise": func(L *lua.LState) int {
			name := L.CheckString(1)
			payload := toGo(L.Get(2))
			h.later(func() { t.RaiseEvent(name, payload) })
			return 0
		},
		"register_render": func(L *lua.LState) int {
			stage, ok := parseStage(L.CheckString(1))
			if !ok {
				L.ArgError(1, "unknown render stage")
				return 0
			}
			fn := L.CheckFunction(2)
			tok, err := t.RegisterRender(stage, func() {
				h.callback("render "+stage.String(), fn, nil)
			})
			if err != nil {
				return pushResult(L, err)
			}
			id := tok.ID.String()
			h.renders[id] = tok
			L.Push(lua.LString(id))
			return 1
		},
		"deregister_render": func(L *lua.LState) int {
			id := L.CheckString(1)
			tok, ok := h.renders[id]
			if ok {
				delete(h.renders, id)
				ok = t.DeregisterRender(tok)
			}
			L.Push(lua.LBool(ok))
			return 1
		},
		"register_bind": func(L *lua.LState) int {
			identifier := L.CheckString(1)
			combo := L.OptString(2, "")
			fn := L.CheckFunction(3)
			err := t.RegisterBind(identifier, combo, func(id string, release bool) {
				h.callback("bind "+id, fn, func(*lua.LState) []lua.LValue {
					return []lua.LValue{lua.LString(id), lua.LBool(release)}
				})
			})
			return pushResult(L, err)
		},
		"deregister_bind": func(L *lua.LState) int {
			L.Push(lua.LBool(t.DeregisterBind(L.CheckString(1))))
			return 1
		},
	}
}

func (h *luaHandle) v2Funcs(t *api.V2) map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"subscribe_fonts": func(L *lua.LState) int {
			identifier := L.CheckString(1)
			fn := L.CheckFunction(2)

			deliver := func(f fonts.Font) {
				h.callback("font "+f.Identifier, fn, func(L *lua.LState) []lua.LValue {
					ft := L.NewTable()
					ft.RawSetString("identifier", lua.LString(f.Identifier))
					ft.RawSetString("size", lua.LNumber(f.Size))
					ft.RawSetString("path", lua.LString(f.Path))
					return []lua.LValue{ft}
				})
			}
			// A font that is already published is delivered during
			// Subscribe, while this call still holds the module.
			var armed atomic.Bool
			recv := func(f fonts.Font) {
				if !armed.Load() {
					h.later(func() { deliver(f) })
					return
				}
				deliver(f)
			}
			tok, err := t.SubscribeFonts(identifier, recv)
			armed.Store(true)
			if err != nil {
				return pushResult(L, err)
			}
			id := tok.String()
			h.fonts[id] = tok
			L.Push(lua.LString(id))
			return 1
		},
		"unsubscribe_fonts": func(L *lua.LState) int {
			id := L.CheckString(1)
			tok, ok := h.fonts[id]
			if ok {
				delete(h.fonts, id)
				ok = t.UnsubscribeFonts(tok)
			}
			L.Push(lua.LBool(ok))
			return 1
		},
		"notify": func(L *lua.LState) int {
			L.Push(lua.LBool(t.Notify(L.CheckString(1))))
			return 1
		},
	}
}

func (h *luaHandle) v3Funcs(t *api.V3) map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"add_shortcut": func(L *lua.LState) int {
			spec := L.CheckTable(1)
			s := quickaccess.Shortcut{
				Identifier: lua.LVAsString(spec.RawGetString("identifier")),
				Icon:       lua.LVAsString(spec.RawGetString("icon")),
				IconHover:  lua.LVAsString(spec.RawGetString("icon_hover")),
				Bind:       lua.LVAsString(spec.RawGetString("bind")),
				Tooltip:    lua.LVAsString(spec.RawGetString("tooltip")),
			}
			if fn, ok := spec.RawGetString("on_click").(*lua.LFunction); ok {
				s.OnClick = func() { h.callback("shortcut "+s.Identifier, fn, nil) }
			}
			return pushResult(L, t.AddShortcut(s))
		},
		"remove_shortcut": func(L *lua.LState) int {
			L.Push(lua.LBool(t.RemoveShortcut(L.CheckString(1))))
			return 1
		},
		"add_context_item": func(L *lua.LState) int {
			spec := L.CheckTable(1)
			item := quickaccess.ContextItem{
				Identifier: lua.LVAsString(spec.RawGetString("identifier")),
				Target:     lua.LVAsString(spec.RawGetString("target")),
			}
			if fn, ok := spec.RawGetString("render").(*lua.LFunction); ok {
				item.Render = func() { h.callback("context item "+item.Identifier, fn, nil) }
			}
			return pushResult(L, t.AddContextItem(item))
		},
		"remove_context_item": func(L *lua.LState) int {
			L.Push(lua.LBool(t.RemoveContextItem(L.CheckString(1))))
			return 1
		},
	}
}
