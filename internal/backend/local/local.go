// Package local implements a backend that reads the app from a directory.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/backend"
	"github.com/skyline93/strvct/internal/fs"
)

// Local is a backend in a local directory.
type Local struct {
	Config
}

var _ backend.Backend = &Local{}

// Open opens the local backend as specified by config.
func Open(_ context.Context, cfg Config) (*Local, error) {
	if cfg.Path == "" {
		cfg.Path = "."
	}
	if cfg.Connections == 0 {
		cfg.Connections = NewConfig().Connections
	}

	fi, err := fs.Stat(cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "Stat")
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%v is not a directory", cfg.Path)
	}

	log.Debugf("open local backend at %v", cfg.Path)
	return &Local{Config: cfg}, nil
}

// Location returns this backend's location (the directory name).
func (b *Local) Location() string {
	return b.Path
}

// Connections returns the maximum number of concurrent loads.
func (b *Local) Connections() uint {
	return b.Config.Connections
}

// IsNotExist returns true if the error is caused by a non existing file.
func (b *Local) IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Load runs fn with a reader that yields the contents of the file at name.
func (b *Local) Load(ctx context.Context, name string, fn func(rd io.Reader) error) error {
	return backend.DefaultLoad(ctx, name, b.openReader, fn)
}

func (b *Local) openReader(_ context.Context, name string) (io.ReadCloser, error) {
	name, err := backend.CleanName(name)
	if err != nil {
		return nil, err
	}

	f, err := fs.Open(filepath.Join(b.Path, filepath.FromSlash(name)))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Close does nothing.
func (b *Local) Close() error {
	return nil
}
