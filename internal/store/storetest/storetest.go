// Package storetest contains the behaviour tests shared by all store implementations.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/skyline93/strvct/internal/store"
	"github.com/skyline93/strvct/internal/strvct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run runs the behaviour every Store implementation must have against
// the store returned by open. The store must be empty.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		s := open(t)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		_, ok, err := s.Get(ctx, strvct.HashString("missing"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put get", func(t *testing.T) {
		s := open(t)
		data := []byte("body { color: red }")
		id := strvct.Hash(data)

		require.NoError(t, s.Put(ctx, id, data))
		require.NoError(t, s.Put(ctx, id, data), "put must be idempotent")

		buf, ok, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, data, buf)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("empty value", func(t *testing.T) {
		s := open(t)
		id := strvct.Hash(nil)
		require.NoError(t, s.Put(ctx, id, []byte{}))

		buf, ok, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Empty(t, buf)
	})

	t.Run("put rejects wrong hash", func(t *testing.T) {
		s := open(t)
		err := s.Put(ctx, strvct.HashString("a"), []byte("b"))
		var mismatch *strvct.IntegrityMismatchError
		require.ErrorAs(t, err, &mismatch)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("delete clear", func(t *testing.T) {
		s := open(t)
		for i := 0; i < 3; i++ {
			data := []byte(fmt.Sprintf("entry %d", i))
			require.NoError(t, s.Put(ctx, strvct.Hash(data), data))
		}

		require.NoError(t, s.Delete(ctx, strvct.HashString("entry 0")))
		require.NoError(t, s.Delete(ctx, strvct.HashString("never stored")))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, s.Clear(ctx))
		n, err = s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		data := []byte("after clear")
		require.NoError(t, s.Put(ctx, strvct.Hash(data), data))
		n, err = s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("concurrent", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				data := []byte(fmt.Sprintf("value %d", i%2))
				id := strvct.Hash(data)
				assert.NoError(t, s.Put(ctx, id, data))
				buf, ok, err := s.Get(ctx, id)
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, data, buf)
			}(i)
		}
		wg.Wait()

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
