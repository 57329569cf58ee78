// Package config reads the optional YAML configuration file of the strvct
// command. Values not present in the file keep their defaults.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration.
type Config struct {
	// Source is the backend URI the app is booted from.
	Source string `json:"source" yaml:"source"`

	// Store is the URI of the persistent hash store. An empty value runs
	// without a cache.
	Store string `json:"store" yaml:"store"`

	Boot  BootConfig  `json:"boot" yaml:"boot"`
	Build BuildConfig `json:"build" yaml:"build"`
	Serve ServeConfig `json:"serve" yaml:"serve"`
	Log   LogConfig   `json:"log" yaml:"log"`
}

// BootConfig configures the resource manager and the resource loader.
type BootConfig struct {
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	Retries         int           `json:"retries" yaml:"retries"`
	VerifyCache     bool          `json:"verify_cache" yaml:"verify_cache"`
	VerifyArtifacts bool          `json:"verify_artifacts" yaml:"verify_artifacts"`
	Prefetch        bool          `json:"prefetch" yaml:"prefetch"`
	PrefetchWorkers uint          `json:"prefetch_workers" yaml:"prefetch_workers"`
}

// BuildConfig configures the build step.
type BuildConfig struct {
	Manifest string        `json:"manifest" yaml:"manifest"`
	OutDir   string        `json:"out_dir" yaml:"out_dir"`
	Workers  uint          `json:"workers" yaml:"workers"`
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

// ServeConfig configures the development server.
type ServeConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Source: "local:.",
		Store:  DefaultStore(),
		Boot: BootConfig{
			Timeout:         30 * time.Second,
			Retries:         3,
			VerifyArtifacts: true,
		},
		Build: BuildConfig{
			Debounce: 200 * time.Millisecond,
		},
		Serve: ServeConfig{
			Listen: "localhost:8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultStore returns the store URI below the user's cache directory, or
// "mem:" if there is none.
func DefaultStore() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "mem:"
	}
	return "local:" + filepath.Join(dir, "strvct")
}

// Load reads the file at path on top of the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}
	defer func() {
		_ = f.Close()
	}()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %v", path)
	}
	return cfg, nil
}

// Decode reads a YAML document from rd on top of the defaults. Unknown keys
// are rejected.
func Decode(rd io.Reader) (Config, error) {
	buf, err := io.ReadAll(rd)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}

	cfg := Default()
	if len(bytes.TrimSpace(buf)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "yaml")
	}

	return cfg, cfg.Validate()
}

// Validate checks the values that cannot be checked by the YAML decoder.
func (c Config) Validate() error {
	if c.Source == "" {
		return errors.New("source must not be empty")
	}
	if c.Boot.Timeout < 0 {
		return errors.Errorf("boot.timeout must not be negative, got %v", c.Boot.Timeout)
	}
	if c.Boot.Retries < 0 {
		return errors.Errorf("boot.retries must not be negative, got %d", c.Boot.Retries)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}
