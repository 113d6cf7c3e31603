// Package event provides the host event bus.
//
// Events are identified by name (for example "EV_ADDON_LOADED") and carry an
// arbitrary payload. Subscribers registered on behalf of an addon are tagged
// with an address inside that addon's module range so that the addon manager
// can purge them through CleanupReferences once the module is unloaded.
//
// Dispatch is synchronous: Raise calls every subscriber of the name in
// subscription order on the caller's goroutine. Panics in subscribers are
// recovered and logged.
package event
