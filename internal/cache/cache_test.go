package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	t.Run("Set and Get", func(t *testing.T) {
		c := New[string](4, time.Minute)
		c.Set("a", "1")

		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, "1", v)
		assert.Equal(t, 1, c.Len())

		_, ok = c.Get("b")
		assert.False(t, ok)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		c := New[int](2, time.Minute)
		c.Set("a", 1)
		c.Set("b", 2)
		c.Get("a")
		c.Set("c", 3)

		_, ok := c.Get("b")
		assert.False(t, ok, "b should have been evicted")
		_, ok = c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("entries expire", func(t *testing.T) {
		c := New[int](4, 20*time.Millisecond)
		c.Set("a", 1)

		assert.Eventually(t, func() bool {
			_, ok := c.Get("a")
			return !ok
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Delete and Purge", func(t *testing.T) {
		c := New[int](4, 0)
		c.Set("a", 1)
		c.Set("b", 2)
		c.Delete("a")
		assert.Equal(t, 1, c.Len())
		c.Purge()
		assert.Equal(t, 0, c.Len())
	})
}

func TestGetOrLoad(t *testing.T) {
	t.Run("loads once and caches", func(t *testing.T) {
		c := New[string](4, time.Minute)
		var calls atomic.Int32
		load := func(ctx context.Context, key string) (string, error) {
			calls.Add(1)
			return "v:" + key, nil
		}

		for range 3 {
			v, err := c.GetOrLoad(context.Background(), "k", load)
			require.NoError(t, err)
			assert.Equal(t, "v:k", v)
		}
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("merges concurrent loads", func(t *testing.T) {
		c := New[int](4, time.Minute)
		var calls atomic.Int32
		release := make(chan struct{})
		load := func(ctx context.Context, key string) (int, error) {
			calls.Add(1)
			<-release
			return 42, nil
		}

		var wg sync.WaitGroup
		results := make([]int, 8)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := c.GetOrLoad(context.Background(), "k", load)
				assert.NoError(t, err)
				results[i] = v
			}()
		}

		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.EqualValues(t, 1, calls.Load())
		for _, v := range results {
			assert.Equal(t, 42, v)
		}
	})

	t.Run("does not cache errors", func(t *testing.T) {
		c := New[int](4, time.Minute)
		boom := errors.New("boom")
		_, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context, key string) (int, error) {
			return 0, boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 0, c.Len())

		v, err := c.GetOrLoad(context.Background(), "k", func(ctx context.Context, key string) (int, error) {
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("caller context ends first", func(t *testing.T) {
		c := New[int](4, time.Minute)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := c.GetOrLoad(ctx, "k", func(ctx context.Context, key string) (int, error) {
			<-done
			return 1, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		close(done)

		assert.Eventually(t, func() bool {
			_, ok := c.Get("k")
			return ok
		}, time.Second, 5*time.Millisecond, "the shared load should still populate the cache")
	})
}
