package local

import (
	"strings"

	"github.com/pkg/errors"
)

// Config holds all information needed to open an on-disk hash store.
type Config struct {
	Path string

	// NoSync skips fsync on writes. Faster, but entries written shortly
	// before a crash may be lost (never torn).
	NoSync bool `option:"nosync" help:"do not fsync written entries (default: false)"`
}

// NewConfig returns a new config with default options applied.
func NewConfig() Config {
	return Config{}
}

// ParseConfig parses a local store config.
func ParseConfig(s string) (*Config, error) {
	if !strings.HasPrefix(s, "local:") {
		return nil, errors.New(`invalid format, prefix "local" not found`)
	}

	cfg := NewConfig()
	cfg.Path = s[6:]
	if cfg.Path == "" {
		return nil, errors.New("local store path is empty")
	}
	return &cfg, nil
}
