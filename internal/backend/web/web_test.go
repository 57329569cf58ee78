package web

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skyline93/strvct/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/app/build/_index.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("/app/big.js", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 100))
	})
	mux.HandleFunc("/app/chunked.js", func(w http.ResponseWriter, r *http.Request) {
		// flushing before the body is written forces chunked encoding
		w.(http.Flusher).Flush()
		_, _ = w.Write(bytes.Repeat([]byte("a"), 100))
	})
	mux.HandleFunc("/app/broken.js", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/app/slow.js", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func openTestBackend(t *testing.T, srv *httptest.Server, timeout time.Duration) *Web {
	cfg, err := ParseConfig(srv.URL + "/app")
	require.NoError(t, err)
	cfg.Timeout = timeout

	be, err := Open(context.Background(), *cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })
	return be
}

func TestWebLoad(t *testing.T) {
	srv := newTestServer(t)
	be := openTestBackend(t, srv, time.Second)
	assert.Equal(t, srv.URL+"/app/", be.Location())

	buf, err := backend.LoadAll(context.Background(), be, "build/_index.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(buf))
}

func TestWebErrors(t *testing.T) {
	srv := newTestServer(t)
	be := openTestBackend(t, srv, 100*time.Millisecond)
	ctx := context.Background()

	_, err := backend.LoadAll(ctx, be, "missing.js")
	require.Error(t, err)
	assert.True(t, be.IsNotExist(err))

	_, err = backend.LoadAll(ctx, be, "broken.js")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, statusErr.Temporary())
	assert.False(t, be.IsNotExist(err))

	_, err = backend.LoadAll(ctx, be, "slow.js")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWebSizeLimit(t *testing.T) {
	srv := newTestServer(t)

	open := func(limit int64) *Web {
		cfg, err := ParseConfig(srv.URL + "/app")
		require.NoError(t, err)
		cfg.MaxSize = limit

		be, err := Open(context.Background(), *cfg, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = be.Close() })
		return be
	}

	for _, limit := range []int64{10, 99} {
		be := open(limit)
		for _, name := range []string{"big.js", "chunked.js"} {
			buf, err := backend.LoadAll(context.Background(), be, name)
			var limitErr *backend.SizeLimitError
			require.ErrorAs(t, err, &limitErr, "%v with limit %d returned %d bytes", name, limit, len(buf))
			assert.Equal(t, limit, limitErr.Limit)
		}
	}

	buf, err := backend.LoadAll(context.Background(), open(100), "chunked.js")
	require.NoError(t, err)
	assert.Len(t, buf, 100)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig("https://example.com/base")
	require.NoError(t, err)
	assert.Equal(t, "/base/", cfg.URL.Path)
	assert.Equal(t, uint(6), cfg.Connections)

	for _, s := range []string{"local:/x", "ftp://host/", "http://"} {
		_, err := ParseConfig(s)
		assert.Error(t, err, "input %q", s)
	}
}
