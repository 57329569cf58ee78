// Package mem implements a backend that keeps files in memory. It counts the
// loads per file, which makes it the backend of choice for tests.
package mem

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/skyline93/strvct/internal/backend"
)

// MemoryBackend is a mock backend that uses a map for storing all data in
// memory. This should only be used for tests.
type MemoryBackend struct {
	data  map[string][]byte
	loads map[string]int
	m     sync.Mutex

	// Hook, when set, runs before every load. A non-nil error aborts the
	// load with that error. The load is counted either way.
	Hook func(ctx context.Context, name string) error
}

var _ backend.Backend = &MemoryBackend{}

// New returns a new backend that saves all data in a map in memory.
func New() *MemoryBackend {
	return &MemoryBackend{
		data:  make(map[string][]byte),
		loads: make(map[string]int),
	}
}

// Set stores buf under name.
func (be *MemoryBackend) Set(name string, buf []byte) {
	be.m.Lock()
	defer be.m.Unlock()
	be.data[name] = append([]byte(nil), buf...)
}

// Loads returns how often name was requested.
func (be *MemoryBackend) Loads(name string) int {
	be.m.Lock()
	defer be.m.Unlock()
	return be.loads[name]
}

// TotalLoads returns the number of loads across all names.
func (be *MemoryBackend) TotalLoads() int {
	be.m.Lock()
	defer be.m.Unlock()
	n := 0
	for _, c := range be.loads {
		n += c
	}
	return n
}

// Location returns the location of the backend (RAM).
func (be *MemoryBackend) Location() string {
	return "RAM"
}

// Connections returns the number of concurrent loads allowed.
func (be *MemoryBackend) Connections() uint {
	return 2
}

// IsNotExist returns true if the file does not exist.
func (be *MemoryBackend) IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Load runs fn with a reader for the file at name.
func (be *MemoryBackend) Load(ctx context.Context, name string, fn func(rd io.Reader) error) error {
	return backend.DefaultLoad(ctx, name, be.openReader, fn)
}

func (be *MemoryBackend) openReader(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	be.m.Lock()
	be.loads[name]++
	hook := be.Hook
	be.m.Unlock()

	if hook != nil {
		if err := hook(ctx, name); err != nil {
			return nil, err
		}
	}

	be.m.Lock()
	buf, ok := be.data[name]
	be.m.Unlock()
	if !ok {
		return nil, errors.Wrap(os.ErrNotExist, name)
	}

	return io.NopCloser(bytes.NewReader(buf)), nil
}

// Close does nothing.
func (be *MemoryBackend) Close() error {
	return nil
}
