package web

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config holds all information needed to load an app over HTTP.
type Config struct {
	URL *url.URL

	Connections uint          `option:"connections" help:"set a limit for the number of concurrent requests (default: 6)"`
	Timeout     time.Duration `option:"timeout" help:"timeout for a single request including the body (default: 30s)"`
	MaxSize     int64         `option:"max-size" help:"maximum accepted response size in bytes (default: 256 MiB)"`
}

// NewConfig returns a new config with default options applied.
func NewConfig() Config {
	return Config{
		Connections: 6,
		Timeout:     30 * time.Second,
		MaxSize:     256 * 1024 * 1024,
	}
}

// ParseConfig parses an http or https URL into a backend config.
func ParseConfig(s string) (*Config, error) {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return nil, errors.New(`invalid format, scheme "http" or "https" not found`)
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, errors.Wrap(err, "url.Parse")
	}
	if u.Host == "" {
		return nil, errors.Errorf("no host in %q", s)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	cfg := NewConfig()
	cfg.URL = u
	return &cfg, nil
}
