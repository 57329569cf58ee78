package local

import (
	"strings"

	"github.com/pkg/errors"
)

// Config holds all information needed to open a local backend.
type Config struct {
	Path string

	Connections uint `option:"connections" help:"set a limit for the number of concurrent operations (default: 4)"`
}

// NewConfig returns a new config with default options applied.
func NewConfig() Config {
	return Config{
		Connections: 4,
	}
}

// ParseConfig parses a local backend config.
func ParseConfig(s string) (*Config, error) {
	if !strings.HasPrefix(s, "local:") {
		return nil, errors.New(`invalid format, prefix "local" not found`)
	}

	cfg := NewConfig()
	cfg.Path = s[6:]
	return &cfg, nil
}
