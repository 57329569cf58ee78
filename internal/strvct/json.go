package strvct

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// MarshalArtifact serialises item as indented JSON followed by a newline, the
// form all JSON artifacts are published in.
func MarshalArtifact(item interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(item); err != nil {
		return nil, errors.Wrap(err, "json.Marshal")
	}
	return buf.Bytes(), nil
}
