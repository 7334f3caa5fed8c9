// Package memory is the in-process cache backend.
package memory

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/waypoint-ai/waypoint/pkg/cache"
	"github.com/waypoint-ai/waypoint/pkg/clock"
)

const shardCount = 32

// Backend is a sharded in-memory map. Keys in different shards never contend
// for the same lock; operations on one key are serialized by its shard.
type Backend struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.RWMutex
	items map[string]cache.Entry
}

var _ cache.Backend = (*Backend)(nil)

// New creates an empty Backend.
func New() *Backend {
	b := &Backend{}
	for i := range b.shards {
		b.shards[i].items = make(map[string]cache.Entry)
	}
	return b
}

// Name implements cache.Backend.
func (b *Backend) Name() string { return "memory" }

func (b *Backend) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &b.shards[h.Sum32()%shardCount]
}

// Set implements cache.Backend.
func (b *Backend) Set(_ context.Context, key string, e cache.Entry) error {
	s := b.shardFor(key)
	s.mu.Lock()
	s.items[key] = e
	s.mu.Unlock()
	return nil
}

// Get implements cache.Backend. An expired entry is removed unless it was
// replaced between the read and the removal.
func (b *Backend) Get(_ context.Context, key string, now time.Time) (cache.Entry, bool, error) {
	s := b.shardFor(key)
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return cache.Entry{}, false, nil
	}
	if !e.Expired(now) {
		return e, true, nil
	}

	s.mu.Lock()
	if cur, ok := s.items[key]; ok && cur.CreatedAt.Equal(e.CreatedAt) {
		delete(s.items, key)
	}
	s.mu.Unlock()
	return cache.Entry{}, false, nil
}

// Delete implements cache.Backend.
func (b *Backend) Delete(_ context.Context, key string) error {
	s := b.shardFor(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Purge implements cache.Backend.
func (b *Backend) Purge(_ context.Context, now time.Time, expiredOnly bool) (int64, error) {
	var removed int64
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		for k, e := range s.items {
			if !expiredOnly || e.Expired(now) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len implements cache.Backend.
func (b *Backend) Len(_ context.Context) (int64, error) {
	var n int64
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.RLock()
		n += int64(len(s.items))
		s.mu.RUnlock()
	}
	return n, nil
}

// Close implements cache.Backend.
func (b *Backend) Close() error { return nil }

// Run evicts expired entries every interval until ctx is cancelled. Expiry is
// already enforced on read, so the sweep only bounds memory.
func (b *Backend) Run(ctx context.Context, interval time.Duration, c clock.Clock) {
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, _ := b.Purge(ctx, c.Now(), true); n > 0 {
				slog.Debug("memory cache: evicted expired entries", "count", n)
			}
		}
	}
}
