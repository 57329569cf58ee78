package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/skyline93/strvct/internal/backend/mem"
	"github.com/skyline93/strvct/internal/store"
	"github.com/skyline93/strvct/internal/strvct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const appJS = "console.log(1)\n"

func newTestRepo(t testing.TB, opts Options) (*Repository, *mem.MemoryBackend, *store.Memory) {
	t.Helper()

	be := mem.New()
	be.Set("app.js", []byte(appJS))
	st := store.NewMemory()
	return New(be, st, opts), be, st
}

func TestLoadResourceCacheHitAvoidsNetwork(t *testing.T) {
	repo, be, st := newTestRepo(t, Options{})
	ctx := context.Background()

	id := strvct.HashString(appJS)
	require.NoError(t, st.Put(ctx, id, []byte(appJS)))

	buf, err := repo.LoadResource(ctx, "app.js", id)
	require.NoError(t, err)
	assert.Equal(t, appJS, string(buf))
	assert.Equal(t, 0, be.TotalLoads())

	stats := repo.Stats()
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, uint64(0), stats.Fetches)
}

func TestLoadResourceFetchesAndCaches(t *testing.T) {
	repo, be, st := newTestRepo(t, Options{})
	ctx := context.Background()
	id := strvct.HashString(appJS)

	buf, err := repo.LoadResource(ctx, "app.js", id)
	require.NoError(t, err)
	assert.Equal(t, appJS, string(buf))
	assert.Equal(t, 1, be.Loads("app.js"))

	cached, ok, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, appJS, string(cached))

	// second load is served by the store
	_, err = repo.LoadResource(ctx, "app.js", id)
	require.NoError(t, err)
	assert.Equal(t, 1, be.Loads("app.js"))

	stats := repo.Stats()
	assert.Equal(t, uint64(1), stats.Fetches)
	assert.Equal(t, uint64(len(appJS)), stats.BytesLoaded)
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, uint64(1), stats.CacheMisses)
	assert.Equal(t, uint64(1), stats.StoreWrites)
}

func TestLoadResourceIntegrityMismatch(t *testing.T) {
	repo, _, st := newTestRepo(t, Options{})
	ctx := context.Background()
	id := strvct.HashString("console.log(2)\n")

	_, err := repo.LoadResource(ctx, "app.js", id)
	require.Error(t, err)

	var mismatch *strvct.IntegrityMismatchError
	require.True(t, errors.As(err, &mismatch), "unexpected error %T: %v", err, err)
	assert.Equal(t, "app.js", mismatch.Path)
	assert.Equal(t, id, mismatch.Want)
	assert.Equal(t, strvct.HashString(appJS), mismatch.Got)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "mismatching content must not be cached")
	assert.Equal(t, uint64(1), repo.Stats().IntegrityFailures)
}

func TestLoadResourceNetworkFailure(t *testing.T) {
	repo, be, _ := newTestRepo(t, Options{})
	be.Hook = func(context.Context, string) error { return errors.New("connection refused") }

	_, err := repo.LoadResource(context.Background(), "app.js", strvct.HashString(appJS))
	require.Error(t, err)

	var loadErr *strvct.ResourceLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "app.js", loadErr.Path)
	assert.Equal(t, 1, be.Loads("app.js"), "the repository must not retry on its own")
}

func TestLoadResourceMissing(t *testing.T) {
	repo, be, _ := newTestRepo(t, Options{})

	_, err := repo.LoadResource(context.Background(), "missing.js", strvct.HashString("x"))
	var loadErr *strvct.ResourceLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.True(t, be.IsNotExist(err))
}

func TestLoadResourceTimeout(t *testing.T) {
	repo, be, _ := newTestRepo(t, Options{Timeout: 20 * time.Millisecond})
	be.Hook = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := repo.LoadResource(context.Background(), "app.js", strvct.HashString(appJS))
	var loadErr *strvct.ResourceLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLoadResourceCancelled(t *testing.T) {
	repo, _, _ := newTestRepo(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.LoadResource(ctx, "app.js", strvct.HashString(appJS))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoadResourceSharesInFlightLoads(t *testing.T) {
	be := mem.New()
	be.Set("app.js", []byte(appJS))

	release := make(chan struct{})
	be.Hook = func(context.Context, string) error {
		<-release
		return nil
	}

	repo := New(be, nil, Options{})
	id := strvct.HashString(appJS)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf, err := repo.LoadResource(context.Background(), "app.js", id)
			assert.NoError(t, err)
			assert.Equal(t, appJS, string(buf))
		}()
	}

	require.Eventually(t, func() bool { return be.Loads("app.js") == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, be.Loads("app.js"))
}

func TestLoadResourceWithoutStore(t *testing.T) {
	be := mem.New()
	be.Set("app.js", []byte(appJS))
	repo := New(be, nil, Options{})
	id := strvct.HashString(appJS)

	for i := 0; i < 2; i++ {
		_, err := repo.LoadResource(context.Background(), "app.js", id)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, be.Loads("app.js"))
}

func TestLoadResourceNullID(t *testing.T) {
	repo, be, st := newTestRepo(t, Options{})

	buf, err := repo.LoadResource(context.Background(), "app.js", strvct.ID{})
	require.NoError(t, err)
	assert.Equal(t, appJS, string(buf))
	assert.Equal(t, 1, be.Loads("app.js"))

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestVerifyCacheDropsCorruptEntry(t *testing.T) {
	for _, verify := range []bool{false, true} {
		repo, be, st := newTestRepo(t, Options{VerifyCache: verify})
		ctx := context.Background()
		id := strvct.HashString(appJS)
		st.Corrupt(id, []byte("alert('pwned')"))

		buf, err := repo.LoadResource(ctx, "app.js", id)
		require.NoError(t, err)

		if !verify {
			// entries are trusted on read
			assert.Equal(t, "alert('pwned')", string(buf))
			assert.Equal(t, 0, be.TotalLoads())
			continue
		}

		assert.Equal(t, appJS, string(buf))
		assert.Equal(t, 1, be.Loads("app.js"))
		assert.Equal(t, uint64(1), repo.Stats().CorruptEntries)

		cached, ok, err := st.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, appJS, string(cached))
	}
}

func TestStoreWriter(t *testing.T) {
	repo, _, st := newTestRepo(t, Options{})
	ctx := context.Background()

	wg, wgCtx := errgroup.WithContext(ctx)
	repo.StartStoreWriter(wgCtx, wg)

	_, err := repo.LoadResource(ctx, "app.js", strvct.HashString(appJS))
	require.NoError(t, err)

	require.NoError(t, repo.Flush(ctx))
	require.NoError(t, wg.Wait())

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// after Flush, writes happen inline
	repo.be.(*mem.MemoryBackend).Set("b.js", []byte("var b;"))
	_, err = repo.LoadResource(ctx, "b.js", strvct.HashString("var b;"))
	require.NoError(t, err)
	n, err = st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	repo, _, _ := newTestRepo(t, Options{Registerer: reg})
	ctx := context.Background()
	id := strvct.HashString(appJS)

	for i := 0; i < 3; i++ {
		_, err := repo.LoadResource(ctx, "app.js", id)
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(repo.metrics.fetches))
	assert.Equal(t, float64(len(appJS)), testutil.ToFloat64(repo.metrics.bytesLoaded))
	assert.Equal(t, 2.0, testutil.ToFloat64(repo.metrics.cacheHits))

	n, err := testutil.GatherAndCount(reg, "strvct_resources_fetches_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVerifyCacheCircuitBreaker(t *testing.T) {
	repo, be, st := newTestRepo(t, Options{VerifyCache: true})
	ctx := context.Background()
	id := strvct.HashString(appJS)

	for i := 0; i < 3; i++ {
		st.Corrupt(id, []byte("garbage"))

		buf, err := repo.LoadResource(ctx, "app.js", id)
		require.NoError(t, err)
		assert.Equal(t, appJS, string(buf))
	}

	assert.Equal(t, 3, be.Loads("app.js"))
	assert.Equal(t, uint64(3), repo.Stats().CorruptEntries)

	// the first corruption removed and rewrote the entry, afterwards the
	// breaker leaves the store alone
	cached, ok, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "garbage", string(cached))
}
