// Package cache is the namespaced TTL key-value store behind snapshots,
// sessions, route segments and weather points.
//
// Values are stored as JSON through a pluggable Backend. Every key is
// addressed as namespace plus the SHA-256 of the caller's raw key, so callers
// never see or depend on the hashed form.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Namespace partitions the store by entity kind.
type Namespace string

const (
	NamespaceSnapshot Namespace = "route_snapshot"
	NamespaceSession  Namespace = "user_session"
	NamespaceSegment  Namespace = "route_segment"
	NamespaceWeather  Namespace = "weather_point"
)

// Namespaces lists every namespace in a stable order.
var Namespaces = []Namespace{NamespaceSnapshot, NamespaceSession, NamespaceSegment, NamespaceWeather}

// ErrUnknownNamespace is returned when writing to a namespace with no TTL.
var ErrUnknownNamespace = errors.New("unknown cache namespace")

// TTLs holds the lifetime of entries in each namespace.
type TTLs struct {
	Snapshot time.Duration
	Session  time.Duration
	Segment  time.Duration
	Weather  time.Duration
}

// DefaultTTLs returns the built-in namespace lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Snapshot: 1500 * time.Second,
		Session:  1800 * time.Second,
		Segment:  900 * time.Second,
		Weather:  600 * time.Second,
	}
}

// For returns the TTL configured for ns.
func (t TTLs) For(ns Namespace) (time.Duration, bool) {
	switch ns {
	case NamespaceSnapshot:
		return t.Snapshot, true
	case NamespaceSession:
		return t.Session, true
	case NamespaceSegment:
		return t.Segment, true
	case NamespaceWeather:
		return t.Weather, true
	}
	return 0, false
}

// Key returns the internal storage key for a raw key in ns.
func Key(ns Namespace, rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return string(ns) + ":" + hex.EncodeToString(sum[:])
}

// Entry is a stored value with its creation time and lifetime. Entries are
// replaced wholesale, never modified in place.
type Entry struct {
	Payload   []byte
	CreatedAt time.Time
	TTL       time.Duration
}

// ExpiresAt returns the first instant at which the entry is no longer valid.
func (e Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// Expired reports whether the entry's age has reached its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Backend stores entries by internal key. Implementations must never return
// an entry for which Entry.Expired(now) is true, and should delete such
// entries when they encounter them.
type Backend interface {
	// Name identifies the backend in stats output.
	Name() string
	// Set stores e under key, replacing any previous entry.
	Set(ctx context.Context, key string, e Entry) error
	// Get returns the live entry for key as of now.
	Get(ctx context.Context, key string, now time.Time) (Entry, bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Purge removes expired entries, or every entry if expiredOnly is false,
	// and returns how many were removed.
	Purge(ctx context.Context, now time.Time, expiredOnly bool) (int64, error)
	// Len returns the number of stored entries, including expired entries
	// that have not been removed yet.
	Len(ctx context.Context) (int64, error)
	// Close releases backend resources.
	Close() error
}
