// Package control serves the local HTTP interface used to inspect addons
// and request lifecycle actions while the host runs.
//
//	GET    /addons                          list every tracked addon
//	GET    /addons/{signature}              one addon
//	POST   /addons/{signature}/{action}     load, unload, reload, uninstall or check
//	PATCH  /addons/{signature}              set preferences
//	POST   /rescan                          rescan the addon directory
//	GET    /notifications                   pending notices
//	DELETE /notifications/{key}             dismiss a notice
//	GET    /metrics                         Prometheus metrics
//
// Requested actions are queued; they run on the next frame.
package control
