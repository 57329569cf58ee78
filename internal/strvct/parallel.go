package strvct

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// SerialForEach runs fn for i in [0, n) one at a time, in order. Each call
// completes before the next one starts. The first error stops the loop.
func SerialForEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// ParallelForEach runs fn for i in [0, n) with at most workers calls in
// flight and waits for all of them. The order in which calls run is not
// defined. The first error cancels the context passed to the remaining calls
// and is returned.
func ParallelForEach(ctx context.Context, n int, workers uint, fn func(ctx context.Context, i int) error) error {
	wg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		wg.SetLimit(int(workers))
	}

	for i := 0; i < n; i++ {
		i := i
		wg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}

	return wg.Wait()
}
