// Package config loads the addon host configuration.
//
// Settings come from three layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Command Line Flags      │  ← applied by cmd/addonhost
//	├─────────────────────────────┤
//	│  2. Environment Variables   │  ← ADDONHOST_*
//	├─────────────────────────────┤
//	│  1. TOML File               │  ← addonhost.toml
//	└─────────────────────────────┘
//
// Missing keys keep their built-in defaults. A missing file is not an
// error.
//
//	[addons]
//	dir = "addons"
//	policy = "addons/policy.json"
//	quiescence = "500ms"
//
//	[host]
//	build = 1351
//	disable_volatile_until_update = true
//
//	[update]
//	enabled = true
//	schedule = "@every 6h"
//
//	[log]
//	level = "info"
//	format = "text"
//
//	[control]
//	listen = "127.0.0.1:7341"
//
// The package also keeps the small state file that remembers the host
// build of the previous run.
package config
