// Package web implements a backend that loads the app from an HTTP server.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/backend"
)

// Web is a backend that issues GET requests below a base URL.
type Web struct {
	Config
	client *http.Client
}

var _ backend.Backend = &Web{}

// notExistError is returned for 404 responses.
type notExistError struct {
	url string
}

func (e *notExistError) Error() string {
	return fmt.Sprintf("%v not found", e.url)
}

// StatusError is returned for responses other than 200 and 404.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %v: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Open returns a backend for cfg. rt may be nil to use the default transport.
func Open(_ context.Context, cfg Config, rt http.RoundTripper) (*Web, error) {
	if cfg.URL == nil {
		return nil, errors.New("no URL given")
	}
	defaults := NewConfig()
	if cfg.Connections == 0 {
		cfg.Connections = defaults.Connections
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaults.MaxSize
	}
	if rt == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.MaxConnsPerHost = int(cfg.Connections)
		rt = tr
	}

	log.Debugf("open web backend at %v", cfg.URL)
	return &Web{
		Config: cfg,
		client: &http.Client{Transport: rt},
	}, nil
}

// Location returns the base URL.
func (b *Web) Location() string {
	return b.URL.String()
}

// Connections returns the maximum number of concurrent requests.
func (b *Web) Connections() uint {
	return b.Config.Connections
}

// IsNotExist returns true if the error was caused by a 404 response.
func (b *Web) IsNotExist(err error) bool {
	var e *notExistError
	return errors.As(err, &e)
}

// Load issues a GET request for name and runs fn with the response body.
func (b *Web) Load(ctx context.Context, name string, fn func(rd io.Reader) error) error {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	return backend.DefaultLoad(ctx, name, b.openReader, fn)
}

func (b *Web) url(name string) string {
	u := *b.URL
	u.Path = path.Join(u.Path, name)
	return u.String()
}

func (b *Web) openReader(ctx context.Context, name string) (io.ReadCloser, error) {
	name, err := backend.CleanName(name)
	if err != nil {
		return nil, err
	}

	target := b.url(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %v", target)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, &notExistError{url: target}
	default:
		_ = resp.Body.Close()
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > b.MaxSize {
		_ = resp.Body.Close()
		return nil, errors.Wrapf(&backend.SizeLimitError{Limit: b.MaxSize}, "GET %v: response of %d bytes", target, resp.ContentLength)
	}

	log.Debugf("GET %v: %v", target, resp.Status)
	// chunked responses carry no length, the limit is enforced while reading
	return backend.LimitReadCloser(resp.Body, b.MaxSize), nil
}

// Close releases idle connections.
func (b *Web) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
