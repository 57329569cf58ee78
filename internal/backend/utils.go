package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// DefaultLoad implements Backend.Load using lower-level openReader func
func DefaultLoad(ctx context.Context, name string,
	openReader func(ctx context.Context, name string) (io.ReadCloser, error),
	fn func(rd io.Reader) error) error {

	rd, err := openReader(ctx, name)
	if err != nil {
		return err
	}
	err = fn(rd)
	if err != nil {
		_ = rd.Close() // ignore secondary errors closing the reader
		return err
	}
	return rd.Close()
}

// LoadAll reads the file at name and returns its content.
func LoadAll(ctx context.Context, be Backend, name string) ([]byte, error) {
	var buf bytes.Buffer
	err := be.Load(ctx, name, func(rd io.Reader) error {
		// make sure this call is idempotent, in case an error occurs
		buf.Reset()
		_, err := io.Copy(&buf, rd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SizeLimitError is returned when a reader holds more data than allowed.
type SizeLimitError struct {
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("content exceeds limit of %d bytes", e.Limit)
}

// LimitedReadCloser reads at most Limit bytes from the wrapped reader. If the
// reader holds more, Read fails with a *SizeLimitError instead of returning
// the first Limit bytes as if they were all.
type LimitedReadCloser struct {
	io.Closer
	Limit int64

	rd io.LimitedReader
}

// LimitReadCloser returns a new reader that wraps r and fails once more than n
// bytes are read. It also exposes the Close() method.
func LimitReadCloser(r io.ReadCloser, n int64) *LimitedReadCloser {
	return &LimitedReadCloser{Closer: r, Limit: n, rd: io.LimitedReader{R: r, N: n + 1}}
}

func (l *LimitedReadCloser) Read(p []byte) (int, error) {
	n, err := l.rd.Read(p)
	if l.rd.N == 0 {
		// the byte past the limit was read, drop it
		if n > 0 {
			n--
		}
		return n, &SizeLimitError{Limit: l.Limit}
	}
	return n, err
}

// CleanName checks that name is a relative slash separated path that stays
// below the root and returns it cleaned.
func CleanName(name string) (string, error) {
	if name == "" || path.IsAbs(name) || strings.Contains(name, "\\") {
		return "", errors.Errorf("invalid name %q", name)
	}
	p := path.Clean(name)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", errors.Errorf("name %q points outside the root", name)
	}
	return p, nil
}
