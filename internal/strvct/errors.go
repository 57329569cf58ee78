package strvct

import (
	"fmt"
)

// ManifestNotFoundError is returned when a referenced manifest does not exist.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest %v not found: %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error { return e.Err }

// ManifestFormatError is returned when a manifest is not a JSON array of
// strings, or when manifests include each other in a cycle.
type ManifestFormatError struct {
	Path   string
	Reason string
}

func (e *ManifestFormatError) Error() string {
	return fmt.Sprintf("manifest %v: %v", e.Path, e.Reason)
}

// MissingFileError is returned at build time when a manifest lists a file
// that does not exist.
type MissingFileError struct {
	Path string
	Err  error
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("file %v listed in manifest is missing: %v", e.Path, e.Err)
}

func (e *MissingFileError) Unwrap() error { return e.Err }

// IndexLoadError is returned when the index artifact cannot be fetched,
// verified or parsed. Boot cannot continue without it.
type IndexLoadError struct {
	Path string
	Err  error
}

func (e *IndexLoadError) Error() string {
	return fmt.Sprintf("unable to load index %v: %v", e.Path, e.Err)
}

func (e *IndexLoadError) Unwrap() error { return e.Err }

// StoreOpenError is returned when the persistent hash store cannot be opened.
// Callers continue without a local cache.
type StoreOpenError struct {
	Location string
	Err      error
}

func (e *StoreOpenError) Error() string {
	return fmt.Sprintf("unable to open hash store %v: %v", e.Location, e.Err)
}

func (e *StoreOpenError) Unwrap() error { return e.Err }

// ResourceLoadError is returned when a resource cannot be fetched.
type ResourceLoadError struct {
	Path string
	Err  error
}

func (e *ResourceLoadError) Error() string {
	return fmt.Sprintf("unable to load %v: %v", e.Path, e.Err)
}

func (e *ResourceLoadError) Unwrap() error { return e.Err }

// IntegrityMismatchError is returned when content does not hash to the
// expected ID.
type IntegrityMismatchError struct {
	Path string
	Want ID
	Got  ID
}

func (e *IntegrityMismatchError) Error() string {
	return fmt.Sprintf("integrity check failed for %v: want hash %v, got %v", e.Path, e.Want, e.Got)
}

// VerifyContent returns an IntegrityMismatchError if buf does not hash to want.
func VerifyContent(p string, want ID, buf []byte) error {
	got := Hash(buf)
	if !got.Equal(want) {
		return &IntegrityMismatchError{Path: p, Want: want, Got: got}
	}
	return nil
}
