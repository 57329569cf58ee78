// Package retry wraps a backend so that failed loads are retried with
// exponential backoff. Whether to retry is decided by whoever builds the
// backend stack, the resource loader itself never retries.
package retry

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/backend"
)

// Backend retries operations on the backend in case of an error with a
// backoff.
type Backend struct {
	backend.Backend
	MaxTries       int
	MaxElapsedTime time.Duration
	Report         func(string, error, time.Duration)
}

var _ backend.Backend = &Backend{}

// New wraps be with a backend that retries operations after a backoff.
// report is called with a description and the error, if one occurred.
func New(be backend.Backend, maxTries int, report func(string, error, time.Duration)) *Backend {
	return &Backend{
		Backend:        be,
		MaxTries:       maxTries,
		MaxElapsedTime: 30 * time.Second,
		Report:         report,
	}
}

func (be *Backend) retry(ctx context.Context, msg string, f func() error) error {
	// Don't do anything when called with an already cancelled context. There would be
	// no retries in that case either, so be consistent and abort always.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = be.MaxElapsedTime

	var b backoff.BackOff = bo
	if be.MaxTries > 0 {
		b = backoff.WithMaxRetries(b, uint64(be.MaxTries-1))
	}

	err := backoff.RetryNotify(f, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		if be.Report != nil {
			be.Report(msg, err, d)
		} else {
			log.Warnf("%v returned error, retrying after %v: %v", msg, d, err)
		}
	})

	return err
}

// Load retries loading the file at name. A missing or oversized file is not
// retried.
func (be *Backend) Load(ctx context.Context, name string, consumer func(rd io.Reader) error) error {
	return be.retry(ctx, "Load("+name+")", func() error {
		err := be.Backend.Load(ctx, name, consumer)
		if err == nil {
			return nil
		}
		var limitErr *backend.SizeLimitError
		if be.Backend.IsNotExist(err) || errors.As(err, &limitErr) {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	})
}
