// Package cachetest holds the behaviour every cache.Backend must share.
package cachetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-ai/waypoint/pkg/cache"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// RunBackendTests runs the backend contract against backends produced by
// newBackend. Each subtest gets a fresh, empty backend.
func RunBackendTests(t *testing.T, newBackend func(t *testing.T) cache.Backend) {
	t.Run("SetAndGet", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		e := cache.Entry{Payload: []byte(`{"a":1}`), CreatedAt: epoch, TTL: time.Minute}
		require.NoError(t, b.Set(ctx, "k", e))

		got, ok, err := b.Get(ctx, "k", epoch)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, e.Payload, got.Payload)
		assert.True(t, got.CreatedAt.Equal(epoch))
		assert.Equal(t, time.Minute, got.TTL)

		_, ok, err = b.Get(ctx, "other", epoch)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ExpiryBoundary", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		ttl := 1500 * time.Second
		require.NoError(t, b.Set(ctx, "k", cache.Entry{Payload: []byte(`1`), CreatedAt: epoch, TTL: ttl}))

		for _, at := range []time.Duration{0, time.Second, ttl - time.Millisecond} {
			_, ok, err := b.Get(ctx, "k", epoch.Add(at))
			require.NoError(t, err)
			assert.True(t, ok, "expected entry at t0+%v", at)
		}

		_, ok, err := b.Get(ctx, "k", epoch.Add(ttl))
		require.NoError(t, err)
		assert.False(t, ok, "entry must be absent at exactly t0+ttl")

		n, err := b.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "expired entry should be removed on read")

		// Reading at an earlier instant must not resurrect it.
		_, ok, err = b.Get(ctx, "k", epoch)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Replace", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Set(ctx, "k", cache.Entry{Payload: []byte(`"old"`), CreatedAt: epoch, TTL: time.Second}))
		later := epoch.Add(10 * time.Second)
		require.NoError(t, b.Set(ctx, "k", cache.Entry{Payload: []byte(`"new"`), CreatedAt: later, TTL: time.Minute}))

		got, ok, err := b.Get(ctx, "k", later.Add(30*time.Second))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte(`"new"`), got.Payload)

		n, err := b.Len(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("Delete", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Set(ctx, "k", cache.Entry{Payload: []byte(`1`), CreatedAt: epoch, TTL: time.Minute}))
		require.NoError(t, b.Delete(ctx, "k"))
		require.NoError(t, b.Delete(ctx, "missing"))

		_, ok, err := b.Get(ctx, "k", epoch)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Purge", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Set(ctx, "short", cache.Entry{Payload: []byte(`1`), CreatedAt: epoch, TTL: time.Second}))
		require.NoError(t, b.Set(ctx, "long", cache.Entry{Payload: []byte(`2`), CreatedAt: epoch, TTL: time.Hour}))

		n, err := b.Purge(ctx, epoch.Add(time.Minute), true)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		_, ok, err := b.Get(ctx, "long", epoch.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		n, err = b.Purge(ctx, epoch, false)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		left, err := b.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, left)
	})

	t.Run("ConcurrentKeys", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("key-%d", i)
				payload := []byte(fmt.Sprintf("%d", i))
				for range 20 {
					if err := b.Set(ctx, key, cache.Entry{Payload: payload, CreatedAt: epoch, TTL: time.Minute}); err != nil {
						t.Error(err)
						return
					}
					got, ok, err := b.Get(ctx, key, epoch)
					if err != nil || !ok || string(got.Payload) != string(payload) {
						t.Errorf("key %s: got %q ok=%v err=%v", key, got.Payload, ok, err)
						return
					}
				}
			}(i)
		}
		wg.Wait()

		n, err := b.Len(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 16, n)
	})
}
