package fs

import (
	"io"
	"os"
)

// File is an open file on a filesystem.
type File interface {
	io.Reader
	io.Closer

	Stat() (os.FileInfo, error)
	Name() string
}
