package strvct

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// IndexEntry describes one tracked file. Entries are written by the build
// step and read back unchanged at boot.
type IndexEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash ID     `json:"hash"`
}

// IndexFile is the on-wire form of _index.json: a JSON array of entries in
// load order.
type IndexFile []IndexEntry

// Paths returns the entry paths in order.
func (f IndexFile) Paths() []string {
	paths := make([]string, 0, len(f))
	for _, e := range f {
		paths = append(paths, e.Path)
	}
	return paths
}

// DecodeIndex parses an index artifact. Duplicate paths are rejected.
func DecodeIndex(rd io.Reader) (IndexFile, error) {
	var f IndexFile
	dec := json.NewDecoder(rd)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "Decode")
	}
	if f == nil {
		return nil, errors.New("index is not a JSON array")
	}

	seen := make(map[string]struct{}, len(f))
	for _, e := range f {
		if e.Path == "" {
			return nil, errors.New("index entry without path")
		}
		if _, ok := seen[e.Path]; ok {
			return nil, errors.Errorf("duplicate index entry for %q", e.Path)
		}
		seen[e.Path] = struct{}{}
	}

	return f, nil
}
