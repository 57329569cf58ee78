package backend

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanName(t *testing.T) {
	var tests = []struct {
		name string
		want string
		ok   bool
	}{
		{"app.js", "app.js", true},
		{"a/./b/../c.css", "a/c.css", true},
		{"build/_index.json", "build/_index.json", true},
		{"", "", false},
		{"/etc/passwd", "", false},
		{"../x", "", false},
		{"a/../../x", "", false},
		{`a\b`, "", false},
		{".", "", false},
	}

	for _, test := range tests {
		got, err := CleanName(test.name)
		if !test.ok {
			assert.Error(t, err, "name %q", test.name)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, test.want, got)
	}
}

func TestLimitReadCloser(t *testing.T) {
	var tests = []struct {
		data  string
		limit int64
	}{
		{"", 4},
		{"012", 4},
		{"0123", 4},
	}

	for _, test := range tests {
		rd := LimitReadCloser(io.NopCloser(bytes.NewReader([]byte(test.data))), test.limit)
		buf, err := io.ReadAll(rd)
		require.NoError(t, err, "data %q", test.data)
		assert.Equal(t, test.data, string(buf))
		assert.NoError(t, rd.Close())
	}
}

func TestLimitReadCloserExceeded(t *testing.T) {
	rd := LimitReadCloser(io.NopCloser(bytes.NewReader([]byte("0123456789"))), 4)
	buf, err := io.ReadAll(rd)

	var limitErr *SizeLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, int64(4), limitErr.Limit)
	assert.True(t, len(buf) <= 4, "read %d bytes", len(buf))

	// the error sticks
	n, err := rd.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.ErrorAs(t, err, &limitErr)
}
