package indexer

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/fs"
	"github.com/skyline93/strvct/internal/strvct"
	"golang.org/x/sync/errgroup"
)

// FileHasher concurrently reads and hashes files below a root directory.
type FileHasher struct {
	root string
	ch   chan<- hashFileJob
}

type hashFileJob struct {
	path string
	// keep requests that the file content is returned with the result
	keep bool
	cb   func(res HashFileResponse)
}

// HashFileResponse is the result of hashing one file.
type HashFileResponse struct {
	Entry strvct.IndexEntry
	// Data is only set when the job asked to keep the content.
	Data []byte
}

// NewFileHasher returns a new file hasher. A worker pool is started, it is
// stopped when ctx is cancelled or TriggerShutdown is called.
func NewFileHasher(ctx context.Context, wg *errgroup.Group, root string, workers uint) *FileHasher {
	ch := make(chan hashFileJob)
	s := &FileHasher{
		root: root,
		ch:   ch,
	}

	for i := uint(0); i < workers; i++ {
		wg.Go(func() error {
			return s.worker(ctx, ch)
		})
	}

	return s
}

func (s *FileHasher) worker(ctx context.Context, jobs <-chan hashFileJob) error {
	for {
		var job hashFileJob
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case job, ok = <-jobs:
			if !ok {
				return nil
			}
		}

		res, err := s.hashFile(job.path, job.keep)
		if err != nil {
			log.Debugf("hashFile returned error, exiting: %v", err)
			return err
		}
		job.cb(res)
	}
}

func (s *FileHasher) hashFile(p string, keep bool) (HashFileResponse, error) {
	name := filepath.Join(s.root, filepath.FromSlash(p))

	var res HashFileResponse
	var err error
	if keep {
		res, err = readAndHash(name)
	} else {
		res, err = streamAndHash(name)
	}
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return HashFileResponse{}, &strvct.MissingFileError{Path: p, Err: err}
		}
		return HashFileResponse{}, errors.Wrapf(err, "read %v", p)
	}
	res.Entry.Path = p

	log.Debugf("hashed %v: %d bytes, %v", p, res.Entry.Size, res.Entry.Hash.Str())
	return res, nil
}

func readAndHash(name string) (HashFileResponse, error) {
	buf, err := fs.ReadFile(name)
	if err != nil {
		return HashFileResponse{}, err
	}

	return HashFileResponse{
		Entry: strvct.IndexEntry{Size: int64(len(buf)), Hash: strvct.Hash(buf)},
		Data:  buf,
	}, nil
}

// streamAndHash hashes the file without holding it in memory.
func streamAndHash(name string) (HashFileResponse, error) {
	f, err := fs.Open(name)
	if err != nil {
		return HashFileResponse{}, err
	}
	defer func() {
		_ = f.Close()
	}()

	id, n, err := strvct.HashReader(f)
	if err != nil {
		return HashFileResponse{}, err
	}
	return HashFileResponse{Entry: strvct.IndexEntry{Size: n, Hash: id}}, nil
}

// Hash queues the file at p (slash separated, relative to the root). cb is
// called from a worker goroutine once the file has been hashed.
func (s *FileHasher) Hash(ctx context.Context, p string, keep bool, cb func(res HashFileResponse)) {
	select {
	case s.ch <- hashFileJob{path: p, keep: keep, cb: cb}:
	case <-ctx.Done():
		log.Debugf("not sending job for %v, context is cancelled", p)
	}
}

// TriggerShutdown stops the workers once all queued jobs are done.
func (s *FileHasher) TriggerShutdown() {
	close(s.ch)
}
