package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/waypoint-ai/waypoint/pkg/clock"
	"github.com/waypoint-ai/waypoint/pkg/models"
)

// Store is the namespaced, TTL-bounded store used by the rest of the system.
// It is safe for concurrent use; all synchronization lives in the Backend.
type Store struct {
	backend Backend
	clock   clock.Clock
	ttls    TTLs
	stats   map[Namespace]*counters
}

type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Store over backend. A nil clock means the wall clock.
func New(backend Backend, c clock.Clock, ttls TTLs) *Store {
	if c == nil {
		c = clock.Real{}
	}
	stats := make(map[Namespace]*counters, len(Namespaces))
	for _, ns := range Namespaces {
		stats[ns] = &counters{}
	}
	return &Store{backend: backend, clock: c, ttls: ttls, stats: stats}
}

// TTL returns the lifetime of entries written to ns.
func (s *Store) TTL(ns Namespace) time.Duration {
	ttl, _ := s.ttls.For(ns)
	return ttl
}

// Put stores v under key in ns with the namespace's TTL.
func (s *Store) Put(ctx context.Context, ns Namespace, key string, v any) error {
	ttl, ok := s.ttls.For(ns)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	return s.PutTTL(ctx, ns, key, v, ttl)
}

// PutTTL stores v under key in ns with an explicit TTL.
func (s *Store) PutTTL(ctx context.Context, ns Namespace, key string, v any, ttl time.Duration) error {
	if _, ok := s.stats[ns]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, ns)
	}
	if ttl <= 0 {
		return fmt.Errorf("cache put %s: ttl must be positive, got %v", ns, ttl)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache put %s: encode: %w", ns, err)
	}
	e := Entry{Payload: payload, CreatedAt: s.clock.Now(), TTL: ttl}
	if err := s.backend.Set(ctx, Key(ns, key), e); err != nil {
		return fmt.Errorf("cache put %s: %w", ns, err)
	}
	return nil
}

// Get decodes the live value stored under key in ns into dst and reports
// whether it was found. Expired entries, backend errors and payloads that do
// not decode cleanly into dst are all reported as misses; undecodable entries
// are also removed.
func (s *Store) Get(ctx context.Context, ns Namespace, key string, dst any) bool {
	c, ok := s.stats[ns]
	if !ok {
		return false
	}
	internal := Key(ns, key)
	e, found, err := s.backend.Get(ctx, internal, s.clock.Now())
	if err != nil {
		slog.Warn("cache get failed", "namespace", ns, "backend", s.backend.Name(), "error", err)
		c.misses.Add(1)
		return false
	}
	if !found {
		c.misses.Add(1)
		return false
	}
	if err := decodeStrict(e.Payload, dst); err != nil {
		slog.Warn("discarding undecodable cache entry", "namespace", ns, "error", err)
		if err := s.backend.Delete(ctx, internal); err != nil {
			slog.Warn("cache delete failed", "namespace", ns, "error", err)
		}
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

// Invalidate removes key from ns.
func (s *Store) Invalidate(ctx context.Context, ns Namespace, key string) error {
	if err := s.backend.Delete(ctx, Key(ns, key)); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", ns, err)
	}
	return nil
}

// Purge removes expired entries, or all entries if expiredOnly is false.
func (s *Store) Purge(ctx context.Context, expiredOnly bool) (int64, error) {
	n, err := s.backend.Purge(ctx, s.clock.Now(), expiredOnly)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return n, nil
}

// Stats returns cache performance metrics.
func (s *Store) Stats(ctx context.Context) (models.CacheStats, error) {
	n, err := s.backend.Len(ctx)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	out := models.CacheStats{Backend: s.backend.Name(), Entries: n}
	for _, ns := range Namespaces {
		c := s.stats[ns]
		ttl, _ := s.ttls.For(ns)
		nsStats := models.NamespaceStats{
			Namespace:  string(ns),
			TTLSeconds: int64(ttl / time.Second),
			Hits:       c.hits.Load(),
			Misses:     c.misses.Load(),
		}
		out.Hits += nsStats.Hits
		out.Misses += nsStats.Misses
		out.Namespaces = append(out.Namespaces, nsStats)
	}
	return out, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// decodeStrict decodes exactly one JSON value into dst, rejecting unknown
// fields and trailing data.
func decodeStrict(payload []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after cached value")
	}
	return nil
}
