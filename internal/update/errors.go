package update

import (
	"errors"
	"fmt"
)

// Update errors.
var (
	// ErrBadLink is returned when an update link cannot be used.
	ErrBadLink = errors.New("invalid update link")

	// ErrBadManifest is returned when a provider response cannot be decoded.
	ErrBadManifest = errors.New("invalid update manifest")

	// ErrEmptyDownload is returned when a download has no content.
	ErrEmptyDownload = errors.New("downloaded update is empty")
)

// StatusError is returned for an unexpected HTTP status.
type StatusError struct {
	URL  string
	Code int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Code)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 429
}
