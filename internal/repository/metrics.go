package repository

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats is a snapshot of the load accounting of a Repository.
type Stats struct {
	Fetches           uint64
	BytesLoaded       uint64
	CacheHits         uint64
	CacheMisses       uint64
	IntegrityFailures uint64
	CorruptEntries    uint64
	StoreWrites       uint64
}

type stats struct {
	fetches           atomic.Uint64
	bytesLoaded       atomic.Uint64
	cacheHits         atomic.Uint64
	cacheMisses       atomic.Uint64
	integrityFailures atomic.Uint64
	corruptEntries    atomic.Uint64
	storeWrites       atomic.Uint64
}

// Stats returns the current counters.
func (r *Repository) Stats() Stats {
	return Stats{
		Fetches:           r.stats.fetches.Load(),
		BytesLoaded:       r.stats.bytesLoaded.Load(),
		CacheHits:         r.stats.cacheHits.Load(),
		CacheMisses:       r.stats.cacheMisses.Load(),
		IntegrityFailures: r.stats.integrityFailures.Load(),
		CorruptEntries:    r.stats.corruptEntries.Load(),
		StoreWrites:       r.stats.storeWrites.Load(),
	}
}

type metrics struct {
	fetches           prometheus.Counter
	bytesLoaded       prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	integrityFailures prometheus.Counter
	corruptEntries    prometheus.Counter
	storeWrites       prometheus.Counter
}

// newMetrics creates the counters and registers them on reg. With a nil reg
// the counters are kept unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: "strvct",
			Subsystem: "resources",
			Name:      name,
			Help:      help,
		})
	}

	return &metrics{
		fetches:           counter("fetches_total", "Number of files requested from the backend."),
		bytesLoaded:       counter("loaded_bytes_total", "Bytes received from the backend."),
		cacheHits:         counter("cache_hits_total", "Resources served from the hash store."),
		cacheMisses:       counter("cache_misses_total", "Resources not found in the hash store."),
		integrityFailures: counter("integrity_failures_total", "Fetched resources that did not match their hash."),
		corruptEntries:    counter("corrupt_entries_total", "Hash store entries dropped because they did not match their key."),
		storeWrites:       counter("store_writes_total", "Resources written to the hash store."),
	}
}
