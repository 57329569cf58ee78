package strvct

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// CAM is the content-addressable map: hash -> content. Every key is the hash
// of its value.
type CAM map[ID]string

// Add inserts content under its own hash and returns that hash. Adding the
// same content twice leaves a single entry.
func (c CAM) Add(content string) ID {
	id := HashString(content)
	c[id] = content
	return id
}

// IDs returns the keys of c sorted by their string form, so iteration over a
// CAM is deterministic.
func (c CAM) IDs() []ID {
	ids := make([]ID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// Verify checks that every key is the hash of its value.
func (c CAM) Verify() error {
	for id, content := range c {
		if got := HashString(content); !got.Equal(id) {
			return &IntegrityMismatchError{Path: id.String(), Want: id, Got: got}
		}
	}
	return nil
}

// DecodeCAM parses a CAM artifact (uncompressed JSON object).
func DecodeCAM(rd io.Reader) (CAM, error) {
	var c CAM
	if err := json.NewDecoder(rd).Decode(&c); err != nil {
		return nil, errors.Wrap(err, "Decode")
	}
	if c == nil {
		return nil, errors.New("cam is not a JSON object")
	}
	return c, nil
}
