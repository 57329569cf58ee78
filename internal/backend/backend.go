// Package backend provides access to the location the app is served from:
// the artifacts written by the build step and the resources they index.
package backend

import (
	"context"
	"io"
)

// Backend loads files by their slash separated path relative to the app root.
type Backend interface {
	// Location returns a string that describes the location of the backend.
	Location() string

	// Connections returns the maximum number of concurrent loads.
	Connections() uint

	// Load runs fn with a reader that yields the content of the file at name.
	// fn may be called more than once by wrappers that retry, so it must be
	// idempotent. The reader is only valid while fn runs.
	Load(ctx context.Context, name string, fn func(rd io.Reader) error) error

	// IsNotExist returns true if the error was caused by a missing file.
	IsNotExist(err error) bool

	// Close releases resources held by the backend.
	Close() error
}
