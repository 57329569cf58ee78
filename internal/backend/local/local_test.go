package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/skyline93/strvct/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build", "_index.json"), []byte("[]"), 0644))

	cfg, err := ParseConfig("local:" + dir)
	require.NoError(t, err)
	be, err := Open(context.Background(), *cfg)
	require.NoError(t, err)
	assert.Equal(t, dir, be.Location())
	assert.Equal(t, uint(4), be.Connections())

	buf, err := backend.LoadAll(context.Background(), be, "build/_index.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(buf))

	_, err = backend.LoadAll(context.Background(), be, "missing.js")
	require.Error(t, err)
	assert.True(t, be.IsNotExist(err))

	_, err = backend.LoadAll(context.Background(), be, "../outside")
	require.Error(t, err)
	assert.False(t, be.IsNotExist(err))
}

func TestLocalOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = Open(context.Background(), Config{Path: file})
	assert.Error(t, err)
}

func TestParseConfig(t *testing.T) {
	_, err := ParseConfig("http://example.com")
	assert.Error(t, err)
}
