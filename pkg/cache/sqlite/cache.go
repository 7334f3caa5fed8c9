// Package sqlite is the durable cache backend. It lets several processes
// share one cache file and keeps entries across restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/waypoint-ai/waypoint/pkg/cache"
)

// Backend stores cache entries in a SQLite table.
type Backend struct {
	db *sql.DB
}

var _ cache.Backend = (*Backend)(nil)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	ttl_ms INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
`

// New opens (or creates) the cache database at dbPath.
func New(dbPath string) (*Backend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// SQLite allows one writer at a time; a single connection keeps
	// same-key operations ordered without busy retries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Backend{db: db}, nil
}

// Name implements cache.Backend.
func (b *Backend) Name() string { return "sqlite" }

// Set implements cache.Backend.
func (b *Backend) Set(ctx context.Context, key string, e cache.Entry) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (cache_key, payload, created_at, ttl_ms, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, e.Payload, e.CreatedAt.UnixNano(), e.TTL.Milliseconds(), e.ExpiresAt().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Get implements cache.Backend.
func (b *Backend) Get(ctx context.Context, key string, now time.Time) (cache.Entry, bool, error) {
	var (
		payload   []byte
		createdAt int64
		ttlMs     int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT payload, created_at, ttl_ms FROM cache_entries WHERE cache_key = ?`,
		key,
	).Scan(&payload, &createdAt, &ttlMs)
	if err == sql.ErrNoRows {
		return cache.Entry{}, false, nil
	}
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("cache get: %w", err)
	}

	e := cache.Entry{
		Payload:   payload,
		CreatedAt: time.Unix(0, createdAt),
		TTL:       time.Duration(ttlMs) * time.Millisecond,
	}
	if e.Expired(now) {
		// Only remove the row we read; a concurrent Set may have replaced it.
		if _, err := b.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE cache_key = ? AND created_at = ?`, key, createdAt,
		); err != nil {
			return cache.Entry{}, false, fmt.Errorf("cache expire: %w", err)
		}
		return cache.Entry{}, false, nil
	}
	return e, true, nil
}

// Delete implements cache.Backend.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Purge implements cache.Backend.
func (b *Backend) Purge(ctx context.Context, now time.Time, expiredOnly bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if expiredOnly {
		res, err = b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixNano())
	} else {
		res, err = b.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	}
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}

// Len implements cache.Backend.
func (b *Backend) Len(ctx context.Context) (int64, error) {
	var count int64
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache len: %w", err)
	}
	return count, nil
}

// Close releases the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}
