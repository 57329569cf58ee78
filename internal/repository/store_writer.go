package repository

import (
	"context"

	"github.com/skyline93/strvct/internal/strvct"
	"golang.org/x/sync/errgroup"
)

type writeTask struct {
	path string
	id   strvct.ID
	data []byte
}

type storeWriter struct {
	writeQueue chan writeTask
	done       <-chan struct{}
}

func (sw *storeWriter) TriggerShutdown() {
	close(sw.writeQueue)
}

// saveEntry implements saving fetched content to the hash store.
type saveEntry interface {
	putStore(ctx context.Context, t writeTask) error
}

func newStoreWriter(ctx context.Context, wg *errgroup.Group, repo saveEntry, connections uint) *storeWriter {
	sw := &storeWriter{
		writeQueue: make(chan writeTask),
		done:       ctx.Done(),
	}

	for i := 0; i < int(connections); i++ {
		wg.Go(func() error {
			for {
				select {
				case t, ok := <-sw.writeQueue:
					if !ok {
						return nil
					}
					// caching is best effort, putStore logs failures
					_ = repo.putStore(ctx, t)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

	return sw
}

func (sw *storeWriter) Queue(ctx context.Context, t writeTask) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sw.done:
		return context.Canceled
	case sw.writeQueue <- t:
	}

	return nil
}
