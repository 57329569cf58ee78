// Package store defines the persistent hash store: a durable key-value cache
// mapping content hashes to content. Values are immutable once written, since
// a key is always the hash of its value.
package store

import (
	"context"
	"sync"

	"github.com/skyline93/strvct/internal/strvct"
)

// Store is a content-addressed local cache. Implementations must be safe for
// concurrent use, and a reader must never observe a partially written value.
type Store interface {
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Get returns the content stored under id. A miss is reported with
	// ok == false and a nil error.
	Get(ctx context.Context, id strvct.ID) (data []byte, ok bool, err error)

	// Put stores data under id. data must hash to id. Putting the same
	// content twice has no further effect.
	Put(ctx context.Context, id strvct.ID, data []byte) error

	// Delete removes the entry for id. Removing a missing entry is not an
	// error.
	Delete(ctx context.Context, id strvct.ID) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}

// CheckPut verifies that data hashes to id. All implementations call it
// before writing.
func CheckPut(id strvct.ID, data []byte) error {
	return strvct.VerifyContent(id.String(), id, data)
}

// Memory is a Store that keeps all entries in memory. It does not survive the
// process and is meant for tests and for running without a cache directory.
type Memory struct {
	m       sync.RWMutex
	entries map[strvct.ID][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[strvct.ID][]byte)}
}

var _ Store = &Memory{}

// Count returns the number of entries.
func (s *Memory) Count(_ context.Context) (int, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	return len(s.entries), nil
}

// Get returns a copy of the entry for id.
func (s *Memory) Get(_ context.Context, id strvct.ID) ([]byte, bool, error) {
	s.m.RLock()
	defer s.m.RUnlock()

	buf, ok := s.entries[id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), buf...), true, nil
}

// Put stores a copy of data.
func (s *Memory) Put(_ context.Context, id strvct.ID, data []byte) error {
	if err := CheckPut(id, data); err != nil {
		return err
	}

	s.m.Lock()
	defer s.m.Unlock()
	if _, ok := s.entries[id]; !ok {
		s.entries[id] = append([]byte(nil), data...)
	}
	return nil
}

// Delete removes the entry for id.
func (s *Memory) Delete(_ context.Context, id strvct.ID) error {
	s.m.Lock()
	defer s.m.Unlock()
	delete(s.entries, id)
	return nil
}

// Clear removes all entries.
func (s *Memory) Clear(_ context.Context) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.entries = make(map[strvct.ID][]byte)
	return nil
}

// Close is a no-op.
func (s *Memory) Close() error {
	return nil
}

// Corrupt overwrites the entry for id without verification. It exists so
// that tests can simulate a damaged cache.
func (s *Memory) Corrupt(id strvct.ID, data []byte) {
	s.m.Lock()
	defer s.m.Unlock()
	s.entries[id] = append([]byte(nil), data...)
}
