// Package update checks addon update providers and stages newer builds
// next to the installed binary as <path>.update, where the addon manager
// swaps them in before the next load.
//
// Two providers are supported. GitHub looks at the releases of a
// repository and downloads the asset matching the addon's file name.
// Direct fetches a small YAML or JSON manifest:
//
//	version: 1.4.0.2
//	url: https://example.com/clock-1.4.0.2.lua
//	prerelease: false
package update
