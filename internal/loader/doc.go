// Package loader maps addon binaries into the host.
//
// Two module formats are supported:
//
//   - Lua scripts (.lua) run in a sandboxed gopher-lua state per module.
//     They export a global GetAddonDef function returning the addon
//     definition table and can be unloaded and reloaded at runtime.
//   - Go plugins (.so) export GetAddonDef as func() *addon.Definition. The
//     Go runtime cannot unmap a plugin, so native addons always load locked.
//
// Multi combines loaders and dispatches by file extension.
package loader
