package loader

import "errors"

// Loader errors.
var (
	// ErrHandleClosed is returned when calling into an unloaded module.
	ErrHandleClosed = errors.New("module handle is closed")

	// ErrForeignHandle is returned for a handle another loader created.
	ErrForeignHandle = errors.New("handle was not created by this loader")

	// ErrUnsupportedExtension is returned when no loader accepts a file.
	ErrUnsupportedExtension = errors.New("no loader for file extension")

	// ErrNotMapped is returned when a module's mapping cannot be found.
	ErrNotMapped = errors.New("module mapping not found")

	// ErrUnknownTable is returned when a capability table type is unknown.
	ErrUnknownTable = errors.New("unknown capability table")
)
