// Package addon implements the addon lifecycle manager.
//
// The Manager discovers addon binaries in a directory, decides when each one
// is loaded, unloaded, reloaded or uninstalled, detects on-disk changes and
// available updates, and enforces the persisted load policy. All work is
// driven through a per-path action queue that the host drains once per frame
// by calling ProcessQueue.
//
// Before an unloaded module's handle is released the manager asks every
// registered ReferenceCleaner to drop callbacks that point into the module's
// address range, so no subsystem keeps a dangling reference into unmapped
// code.
package addon
