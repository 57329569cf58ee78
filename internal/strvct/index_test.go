package strvct

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIndex(t *testing.T) {
	idx, err := DecodeIndex(strings.NewReader(`[
		{"path": "a.css", "size": 3, "hash": "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0="},
		{"path": "b.js", "size": 0, "hash": "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.css", "b.js"}, idx.Paths())
	assert.Equal(t, HashString("abc"), idx[0].Hash)
}

func TestDecodeIndexErrors(t *testing.T) {
	var tests = []struct {
		name  string
		input string
	}{
		{"not json", `{`},
		{"object", `{"path": "a"}`},
		{"null", `null`},
		{"missing path", `[{"size": 1, "hash": "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="}]`},
		{"bad hash", `[{"path": "a", "size": 1, "hash": "xyz"}]`},
		{"duplicate", `[
			{"path": "a", "size": 0, "hash": "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="},
			{"path": "a", "size": 0, "hash": "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="}
		]`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := DecodeIndex(strings.NewReader(test.input))
			assert.Error(t, err)
		})
	}
}

func TestExtensions(t *testing.T) {
	assert.True(t, CanBeBundled("a/b/style.CSS"))
	assert.True(t, CanBeBundled("icons/x.svg"))
	assert.False(t, CanBeBundled("fonts/x.woff2"))
	assert.False(t, CanBeBundled("Makefile"))

	assert.True(t, IsManifest("sub/_imports.json"))
	assert.False(t, IsManifest("sub/imports.json"))

	assert.Equal(t, "build/_index.json", ArtifactPath(IndexArtifact))
	assert.Equal(t, "build/_cam.json.zip.hash", SidecarPath(ArtifactPath(CAMArchive)))
}
