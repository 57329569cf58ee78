package strvct

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/minio/sha256-simd"
)

// idSize contains the size of an ID, in bytes.
const idSize = sha256.Size

// ID references content by its SHA-256 hash. Its canonical string form is
// standard base64 with padding, which is what index files, CAM keys and
// .hash sidecars carry.
type ID [idSize]byte

// ParseID converts the given base64 string to an ID.
func ParseID(s string) (ID, error) {
	if len(s) != base64.StdEncoding.EncodedLen(idSize) {
		return ID{}, fmt.Errorf("invalid length for ID: %q", s)
	}

	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid ID: %s", err)
	}

	id := ID{}
	copy(id[:], b)

	return id, nil
}

const shortStr = 4

// Str returns the shortened string version of id.
func (id *ID) Str() string {
	if id == nil {
		return "[nil]"
	}

	if id.IsNull() {
		return "[null]"
	}

	return hex.EncodeToString(id[:shortStr])
}

func (id ID) String() string {
	return base64.StdEncoding.EncodeToString(id[:])
}

// Hex returns the lowercase hex form of id. Base64 may contain '/', so
// anything that names files after an ID uses this form.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// IsNull returns true iff id only consists of null bytes.
func (id ID) IsNull() bool {
	var nullID ID

	return id == nullID
}

// Equal compares an ID to another other.
func (id ID) Equal(other ID) bool {
	return id == other
}

// MarshalText encodes id as base64.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses a base64 encoded ID.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Hash returns the ID for data.
func Hash(data []byte) ID {
	return sha256.Sum256(data)
}

// HashString returns the ID for the UTF-8 bytes of s.
func HashString(s string) ID {
	return Hash([]byte(s))
}

// HashReader consumes rd and returns the ID of everything read together with
// the number of bytes.
func HashReader(rd io.Reader) (ID, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, rd)
	if err != nil {
		return ID{}, n, err
	}
	return idFromHash(h.Sum(nil)), n, nil
}

func idFromHash(hash []byte) (id ID) {
	if len(hash) != idSize {
		panic("invalid hash type, not enough/too many bytes")
	}

	copy(id[:], hash)
	return id
}
