package loader

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/addonhost/internal/addon"
)

// Flag names accepted in a definition's flags list.
var luaFlags = map[string]addon.Flags{
	"hotload_disabled": addon.FlagHotloadDisabled,
	"volatile":         addon.FlagVolatile,
}

// definition converts the table returned by GetAddonDef. The load and
// unload entries become Go functions calling back into the module. Must be
// called with h.mu held.
func (h *luaHandle) definition(t *lua.LTable) (*addon.Definition, error) {
	def := &addon.Definition{
		Name:        lua.LVAsString(t.RawGetString("name")),
		Author:      lua.LVAsString(t.RawGetString("author")),
		Description: lua.LVAsString(t.RawGetString("description")),
		APIVersion:  int(lua.LVAsNumber(t.RawGetString("api_version"))),
		Provider:    addon.ParseUpdateProvider(lua.LVAsString(t.RawGetString("provider"))),
		UpdateLink:  lua.LVAsString(t.RawGetString("update_link")),
	}

	switch sig := t.RawGetString("signature").(type) {
	case lua.LNumber:
		def.Signature = uint32(sig)
	case lua.LString:
		n, err := addon.ParseSignature(string(sig))
		if err != nil {
			return nil, err
		}
		def.Signature = n
	}

	switch v := t.RawGetString("version").(type) {
	case *lua.LTable:
		def.Version = addon.Version{
			Major:    uint16(lua.LVAsNumber(v.RawGetString("major"))),
			Minor:    uint16(lua.LVAsNumber(v.RawGetString("minor"))),
			Build:    uint16(lua.LVAsNumber(v.RawGetString("build"))),
			Revision: uint16(lua.LVAsNumber(v.RawGetString("revision"))),
		}
	case lua.LString:
		ver, err := addon.ParseVersion(string(v))
		if err != nil {
			return nil, err
		}
		def.Version = ver
	}

	flags, err := parseFlags(t.RawGetString("flags"))
	if err != nil {
		return nil, err
	}
	def.Flags = flags

	if fn, ok := t.RawGetString("load").(*lua.LFunction); ok {
		def.Load = func(table any) error {
			return h.do(func(L *lua.LState) error {
				mod, err := h.bindAPI(L, table)
				if err != nil {
					return err
				}
				return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, mod)
			})
		}
	}
	if fn, ok := t.RawGetString("unload").(*lua.LFunction); ok {
		def.Unload = func() error {
			return h.call(fn)
		}
	}
	return def, nil
}

func parseFlags(v lua.LValue) (addon.Flags, error) {
	var out addon.Flags
	add := func(name string) error {
		f, ok := luaFlags[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("unknown addon flag %q", name)
		}
		out |= f
		return nil
	}
	switch fv := v.(type) {
	case *lua.LNilType:
	case lua.LNumber:
		out = addon.Flags(fv)
	case lua.LString:
		if err := add(string(fv)); err != nil {
			return 0, err
		}
	case *lua.LTable:
		for i := 1; i <= fv.Len(); i++ {
			if err := add(lua.LVAsString(fv.RawGetInt(i))); err != nil {
				return 0, err
			}
		}
	default:
		return 0, fmt.Errorf("flags must be a list of names, got %s", v.Type())
	}
	return out, nil
}
