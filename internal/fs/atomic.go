package fs

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteFileAtomic writes data to name so that readers either see the old
// file or the complete new one. The data is written to a temporary file in
// the same directory, synced, and renamed into place. The directory is synced
// afterwards.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(name)
	f, err := TempFile(dir, ".tmp-"+filepath.Base(name)+"-")
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		if err != nil {
			_ = f.Close()
			_ = RemoveIfExists(f.Name())
		}
	}()

	if _, err = f.Write(data); err != nil {
		return errors.Wrap(err, "Write")
	}
	if err = f.Sync(); err != nil && !isNotSupported(err) {
		return errors.Wrap(err, "Sync")
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "Close")
	}
	if err = Chmod(f.Name(), perm); err != nil {
		return errors.WithStack(err)
	}
	if err = Rename(f.Name(), name); err != nil {
		return errors.WithStack(err)
	}

	return SyncDir(dir)
}
