// Package repository resolves indexed resources to their content. It prefers
// the persistent hash store over the backend, verifies what the backend
// returns against the expected hash and writes fetched content back to the
// store for the next boot.
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/skyline93/strvct/internal/backend"
	"github.com/skyline93/strvct/internal/store"
	"github.com/skyline93/strvct/internal/strvct"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single resource fetch.
const DefaultTimeout = 30 * time.Second

// Options configure a Repository.
type Options struct {
	// Timeout bounds each fetch from the backend. Zero selects
	// DefaultTimeout, a negative value disables the limit.
	Timeout time.Duration

	// VerifyCache re-hashes content read from the store. An entry that does
	// not match its key is removed and the resource is fetched again.
	VerifyCache bool

	// Registerer receives the load counters. It may be nil.
	Registerer prometheus.Registerer
}

// Repository loads resources from a backend and a persistent hash store.
type Repository struct {
	be    backend.Backend
	store store.Store

	opts Options

	group   singleflight.Group
	stats   stats
	metrics *metrics

	// forgotten holds the IDs of corrupt store entries removed during this
	// run. The value is true once an entry was found corrupt a second time.
	forgotten sync.Map

	writerMu sync.RWMutex
	writerWg *errgroup.Group
	writer   *storeWriter
}

// New returns a new repository. st may be nil, in which case every resource is
// loaded from be.
func New(be backend.Backend, st store.Store, opts Options) *Repository {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	return &Repository{
		be:      be,
		store:   st,
		opts:    opts,
		metrics: newMetrics(opts.Registerer),
	}
}

// Backend returns the backend for the repository.
func (r *Repository) Backend() backend.Backend {
	return r.be
}

// Store returns the persistent hash store, which is nil when running without
// a cache.
func (r *Repository) Store() store.Store {
	return r.store
}

// Connections returns the number of concurrent fetches the backend allows.
func (r *Repository) Connections() uint {
	return r.be.Connections()
}

// StartStoreWriter starts the workers that save fetched content to the store
// in the background. Until it is called, or after Flush, content is saved
// before LoadResource returns.
func (r *Repository) StartStoreWriter(ctx context.Context, wg *errgroup.Group) {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	if r.writerWg != nil {
		panic("store writer already started")
	}
	if r.store == nil {
		return
	}

	innerWg, ctx := errgroup.WithContext(ctx)
	r.writerWg = innerWg
	r.writer = newStoreWriter(ctx, innerWg, r, r.be.Connections())

	wg.Go(func() error {
		return innerWg.Wait()
	})
}

// Flush waits until all queued store writes are done and stops the writers.
func (r *Repository) Flush(ctx context.Context) error {
	r.writerMu.Lock()
	wg, w := r.writerWg, r.writer
	r.writerWg, r.writer = nil, nil
	r.writerMu.Unlock()

	if w == nil {
		return nil
	}

	w.TriggerShutdown()

	done := make(chan error, 1)
	go func() {
		done <- wg.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadResource returns the content of the resource at p, which must hash to
// id. A null id skips the store and the verification. Concurrent calls for
// the same path share one load.
func (r *Repository) LoadResource(ctx context.Context, p string, id strvct.ID) ([]byte, error) {
	v, err, shared := r.group.Do(p, func() (interface{}, error) {
		return r.loadResource(ctx, p, id)
	})
	if shared {
		log.Debugf("load of %v shared with a concurrent caller", p)
	}
	if err != nil {
		return nil, err
	}

	return v.([]byte), nil
}

func (r *Repository) loadResource(ctx context.Context, p string, id strvct.ID) ([]byte, error) {
	if !id.IsNull() {
		buf, ok := r.loadCached(ctx, p, id)
		if ok {
			return buf, nil
		}
	}

	buf, err := r.fetch(ctx, p)
	if err != nil {
		return nil, err
	}

	if id.IsNull() {
		return buf, nil
	}

	if err := strvct.VerifyContent(p, id, buf); err != nil {
		r.stats.integrityFailures.Add(1)
		r.metrics.integrityFailures.Inc()
		log.Errorf("%v", err)
		return nil, err
	}

	r.saveToStore(ctx, p, id, buf)
	return buf, nil
}

// loadCached looks id up in the store. Store failures are reported as a miss.
func (r *Repository) loadCached(ctx context.Context, p string, id strvct.ID) ([]byte, bool) {
	if r.store == nil {
		return nil, false
	}

	buf, ok, err := r.store.Get(ctx, id)
	if err != nil {
		log.Warnf("reading %v from the hash store failed: %v", p, err)
		ok = false
	}
	if !ok {
		r.stats.cacheMisses.Add(1)
		r.metrics.cacheMisses.Inc()
		return nil, false
	}

	if r.opts.VerifyCache {
		if err := strvct.VerifyContent(p, id, buf); err != nil {
			r.stats.corruptEntries.Add(1)
			r.metrics.corruptEntries.Inc()
			if err := r.forget(ctx, id); err != nil {
				log.Warnf("%v: %v", p, err)
			}
			return nil, false
		}
	}

	log.Debugf("%v loaded from the hash store", p)
	r.stats.cacheHits.Add(1)
	r.metrics.cacheHits.Inc()
	return buf, true
}

// forget removes a corrupt entry from the store. An entry is removed at most
// once per run; if it turns up corrupt again, the store is not written for
// that ID any more.
func (r *Repository) forget(ctx context.Context, id strvct.ID) error {
	if _, loaded := r.forgotten.LoadOrStore(id, false); loaded {
		r.forgotten.Store(id, true)
		return errors.Errorf("circuit breaker prevents repeated deletion of cache entry %v", id.Str())
	}

	log.Warnf("dropping corrupt cache entry %v", id.Str())
	if err := r.store.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "remove %v", id.Str())
	}
	return nil
}

// LoadFile fetches the file at name from the backend. The content is neither
// verified nor cached; it is used for the build artifacts.
func (r *Repository) LoadFile(ctx context.Context, name string) ([]byte, error) {
	return r.fetch(ctx, name)
}

func (r *Repository) fetch(ctx context.Context, name string) ([]byte, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	r.stats.fetches.Add(1)
	r.metrics.fetches.Inc()

	start := time.Now()
	buf, err := backend.LoadAll(ctx, r.be, name)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Wrapf(err, "no response within %v", r.opts.Timeout)
		}
		return nil, &strvct.ResourceLoadError{Path: name, Err: err}
	}

	log.Debugf("fetched %v (%d bytes) in %v", name, len(buf), time.Since(start))
	r.stats.bytesLoaded.Add(uint64(len(buf)))
	r.metrics.bytesLoaded.Add(float64(len(buf)))
	return buf, nil
}

// saveToStore writes buf to the store, through the writer queue if it is
// running. Failures are logged and otherwise ignored.
func (r *Repository) saveToStore(ctx context.Context, p string, id strvct.ID, buf []byte) {
	if r.store == nil {
		return
	}
	if broken, ok := r.forgotten.Load(id); ok && broken.(bool) {
		log.Debugf("not caching %v, its cache entry keeps getting corrupted", p)
		return
	}

	r.writerMu.RLock()
	w := r.writer
	if w != nil {
		err := w.Queue(ctx, writeTask{path: p, id: id, data: buf})
		r.writerMu.RUnlock()
		if err != nil {
			log.Debugf("not caching %v: %v", p, err)
		}
		return
	}
	r.writerMu.RUnlock()

	_ = r.putStore(ctx, writeTask{path: p, id: id, data: buf})
}

func (r *Repository) putStore(ctx context.Context, t writeTask) error {
	err := r.store.Put(ctx, t.id, t.data)
	if err != nil {
		log.Warnf("caching %v failed: %v", t.path, err)
		return err
	}

	r.stats.storeWrites.Add(1)
	r.metrics.storeWrites.Inc()
	log.Debugf("cached %v as %v", t.path, t.id.Str())
	return nil
}
