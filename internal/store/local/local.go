// Package local implements a hash store that keeps one file per entry below a
// directory.
package local

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/fs"
	"github.com/skyline93/strvct/internal/store"
	"github.com/skyline93/strvct/internal/strvct"
)

// Store keeps entries as files named after the hex form of their ID, sharded
// into subdirectories by the first two characters.
type Store struct {
	path    string
	Created bool
	cfg     Config
	modes   Modes
}

var _ store.Store = &Store{}

const dataDir = "data"

// Open opens the store at cfg.Path, creating it if needed. Failures are
// reported as *strvct.StoreOpenError.
func Open(_ context.Context, cfg Config) (*Store, error) {
	s := &Store{path: cfg.Path, cfg: cfg}
	s.modes = deriveModes(fs.Stat(cfg.Path))

	fi, err := fs.Stat(s.dir())
	switch {
	case err == nil && !fi.IsDir():
		return nil, &strvct.StoreOpenError{Location: cfg.Path, Err: errors.New("not a directory")}
	case os.IsNotExist(err):
		if err := fs.MkdirAll(s.dir(), s.modes.Dir); err != nil {
			return nil, &strvct.StoreOpenError{Location: cfg.Path, Err: err}
		}
		s.Created = true
	case err != nil:
		return nil, &strvct.StoreOpenError{Location: cfg.Path, Err: err}
	}

	// probe that we can actually write
	probe, err := fs.TempFile(s.dir(), ".probe-")
	if err != nil {
		return nil, &strvct.StoreOpenError{Location: cfg.Path, Err: err}
	}
	_ = probe.Close()
	_ = fs.Remove(probe.Name())

	log.Debugf("opened local hash store at %v (created: %v)", cfg.Path, s.Created)
	return s, nil
}

func (s *Store) dir() string {
	return filepath.Join(s.path, dataDir)
}

func (s *Store) filename(id strvct.ID) string {
	name := id.Hex()
	return filepath.Join(s.dir(), name[:2], name)
}

// Count returns the number of entries by walking the data directory.
func (s *Store) Count(ctx context.Context) (int, error) {
	n := 0
	err := filepath.Walk(s.dir(), func(name string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrap(err, "Walk")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if isEntry(fi) {
			n++
		}
		return nil
	})

	return n, err
}

// isEntry reports whether fi is a stored entry and not a directory or a
// leftover temporary file.
func isEntry(fi os.FileInfo) bool {
	if fi.Mode()&(os.ModeType|os.ModeCharDevice) != 0 {
		return false
	}
	_, err := hexID(fi.Name())
	return err == nil
}

func hexID(name string) (strvct.ID, error) {
	var id strvct.ID
	if len(name) != 2*len(id) {
		return id, errors.New("invalid length")
	}
	for i := range id {
		hi, ok1 := fromHex(name[2*i])
		lo, ok2 := fromHex(name[2*i+1])
		if !ok1 || !ok2 {
			return strvct.ID{}, errors.New("invalid character")
		}
		id[i] = hi<<4 | lo
	}
	return id, nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// Get reads the entry for id.
func (s *Store) Get(_ context.Context, id strvct.ID) ([]byte, bool, error) {
	buf, err := fs.ReadFile(s.filename(id))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WithStack(err)
	}
	return buf, true, nil
}

// Has returns true if the entry for id exists.
func (s *Store) Has(id strvct.ID) bool {
	_, err := fs.Stat(s.filename(id))
	return err == nil
}

// Put writes data to a temporary file and renames it into place, so a
// concurrent Get sees either nothing or the complete entry.
func (s *Store) Put(_ context.Context, id strvct.ID, data []byte) error {
	if err := store.CheckPut(id, data); err != nil {
		return err
	}

	if s.Has(id) {
		return nil
	}

	name := s.filename(id)
	if err := fs.MkdirAll(filepath.Dir(name), s.modes.Dir); err != nil {
		return errors.WithStack(err)
	}

	if s.cfg.NoSync {
		return s.putNoSync(name, data)
	}
	return fs.WriteFileAtomic(name, data, s.modes.File)
}

func (s *Store) putNoSync(name string, data []byte) error {
	f, err := fs.TempFile(filepath.Dir(name), ".tmp-")
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = fs.Remove(f.Name())
		return errors.Wrap(err, "Write")
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(f.Name())
		return errors.Wrap(err, "Close")
	}
	if err := fs.Chmod(f.Name(), s.modes.File); err != nil {
		_ = fs.Remove(f.Name())
		return errors.WithStack(err)
	}
	return errors.WithStack(fs.Rename(f.Name(), name))
}

// Delete removes the entry for id. When the entry does not exist, no error is
// returned.
func (s *Store) Delete(_ context.Context, id strvct.ID) error {
	return fs.RemoveIfExists(s.filename(id))
}

// Clear removes all entries.
func (s *Store) Clear(_ context.Context) error {
	log.Infof("clearing local hash store at %v", s.path)
	if err := fs.RemoveAll(s.dir()); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(fs.MkdirAll(s.dir(), s.modes.Dir))
}

// Close is a no-op, all writes are complete when Put returns.
func (s *Store) Close() error {
	return nil
}
