package addon

import (
	"errors"
	"fmt"
)

// Addon manager errors.
var (
	// ErrIncompatible is returned when a module exposes no valid definition.
	ErrIncompatible = errors.New("addon is incompatible")

	// ErrDuplicate is returned when another tracked addon owns the signature.
	ErrDuplicate = errors.New("addon signature already in use")

	// ErrIncompatibleCapability is returned when the requested API version is unsupported.
	ErrIncompatibleCapability = errors.New("addon requests an unsupported API version")

	// ErrTransientIO is returned when a filesystem step failed and will be retried.
	ErrTransientIO = errors.New("transient filesystem error")

	// ErrReferenceLeak reports callbacks still registered after an unload.
	ErrReferenceLeak = errors.New("addon left references behind")

	// ErrNotTracked is returned for an unknown path or signature.
	ErrNotTracked = errors.New("addon is not tracked")

	// ErrBusy is returned while an unload is in flight.
	ErrBusy = errors.New("addon is waiting for unload")

	// ErrNoProvider is returned when an update check is requested for an
	// addon without an update provider.
	ErrNoProvider = errors.New("addon has no update provider")

	// ErrShuttingDown is returned for requests made during shutdown.
	ErrShuttingDown = errors.New("addon manager is shutting down")
)

// LoadError describes a failed load attempt.
type LoadError struct {
	Path      string
	Signature uint32
	Err       error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Signature != 0 {
		return fmt.Sprintf("load %s (%#08x): %v", e.Path, e.Signature, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// PanicError wraps a panic raised by addon code.
type PanicError struct {
	Where string
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("addon panicked in %s: %v", e.Where, e.Value)
}
