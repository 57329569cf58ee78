// Package badger implements a hash store on top of BadgerDB. Every write is a
// transaction, so a reader never observes a partially written entry.
package badger

import (
	"context"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/fs"
	"github.com/skyline93/strvct/internal/store"
	"github.com/skyline93/strvct/internal/strvct"
)

// Config holds configuration for a BadgerDB backed store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory. Useful for testing.
	InMemory bool

	// SyncWrites makes every commit durable before it returns.
	SyncWrites bool
}

// DefaultConfig returns the configuration used for on-device caches.
func DefaultConfig() Config {
	return Config{
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

// ParseConfig parses a badger store config ("badger:/path").
func ParseConfig(s string) (*Config, error) {
	if !strings.HasPrefix(s, "badger:") {
		return nil, errors.New(`invalid format, prefix "badger" not found`)
	}

	cfg := DefaultConfig()
	cfg.Path = s[7:]
	if cfg.Path == "" {
		return nil, errors.New("badger store path is empty")
	}
	return &cfg, nil
}

// keyPrefix namespaces the entries, so that other data can share the
// database later without being counted.
var keyPrefix = []byte("cam/")

func key(id strvct.ID) []byte {
	k := make([]byte, 0, len(keyPrefix)+len(id))
	k = append(k, keyPrefix...)
	return append(k, id[:]...)
}

// Store is a hash store backed by BadgerDB.
type Store struct {
	db *badger.DB
}

var _ store.Store = &Store{}

// badgerLogger passes BadgerDB's messages to logrus. Badger is chatty at info
// level, so those messages are logged at debug level.
type badgerLogger struct {
	entry *log.Entry
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Open opens the database. Failures are reported as *strvct.StoreOpenError.
func Open(_ context.Context, cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, &strvct.StoreOpenError{Location: "badger", Err: errors.New("path is required for persistent database")}
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := fs.MkdirAll(cfg.Path, 0700); err != nil {
			return nil, &strvct.StoreOpenError{Location: cfg.Path, Err: err}
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{entry: log.WithField("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &strvct.StoreOpenError{Location: cfg.Path, Err: err}
	}

	return &Store{db: db}, nil
}

// Count iterates over all keys without fetching values.
func (s *Store) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return n, nil
}

// Get returns the entry for id.
func (s *Store) Get(_ context.Context, id strvct.ID) ([]byte, bool, error) {
	var buf []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		buf, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %v", id.Str())
	}
	if buf == nil {
		buf = []byte{}
	}
	return buf, true, nil
}

// Put stores data under id in its own transaction.
func (s *Store) Put(_ context.Context, id strvct.ID, data []byte) error {
	if err := store.CheckPut(id, data); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(id), data)
	})
	// two writers of the same key commit identical values
	if errors.Is(err, badger.ErrConflict) {
		return nil
	}
	return errors.Wrapf(err, "put %v", id.Str())
}

// Delete removes the entry for id.
func (s *Store) Delete(_ context.Context, id strvct.ID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
	return errors.Wrapf(err, "delete %v", id.Str())
}

// Clear drops all entries.
func (s *Store) Clear(_ context.Context) error {
	log.Info("clearing badger hash store")
	return errors.Wrap(s.db.DropPrefix(keyPrefix), "clear")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
