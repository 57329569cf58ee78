package fs

import (
	"os"
	"path/filepath"
	"strings"
)

// fixpath returns an absolute path on windows, so paths longer than 260
// characters can be accessed.
func fixpath(name string) string {
	abspath, err := filepath.Abs(name)
	if err != nil {
		return name
	}
	// already a UNC path with long path prefix
	if strings.HasPrefix(abspath, `\\?\`) {
		return abspath
	}
	// UNC path
	if strings.HasPrefix(abspath, `\\`) {
		return `\\?\UNC\` + abspath[2:]
	}
	return `\\?\` + abspath
}

// Chmod changes the mode of the named file to mode. Windows only knows the
// read-only bit, which os.Chmod maps.
func Chmod(name string, mode os.FileMode) error {
	return os.Chmod(fixpath(name), mode)
}

func isNotSupported(_ error) bool {
	return false
}

// SyncDir does nothing, directories cannot be opened for syncing on windows.
func SyncDir(_ string) error {
	return nil
}
