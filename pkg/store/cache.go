package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CacheEntry is one short-lived cached API response.
type CacheEntry struct {
	Key       string
	Payload   string
	CachedAt  time.Time
	ExpiresAt time.Time
}

// CacheGet returns the entry for key if it has not expired.
func (s *Store) CacheGet(ctx context.Context, key string, now time.Time) (*CacheEntry, bool, error) {
	var e CacheEntry
	var cachedAt, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT key, payload, cached_at, expires_at FROM cache_entries WHERE key = ? AND expires_at > ?`,
		key, now.Unix(),
	).Scan(&e.Key, &e.Payload, &cachedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	e.CachedAt = time.Unix(cachedAt, 0)
	e.ExpiresAt = time.Unix(expiresAt, 0)
	return &e, true, nil
}

// CachePut inserts or replaces the entry for key with the given TTL.
func (s *Store) CachePut(ctx context.Context, key, payload string, now time.Time, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, payload, cached_at, expires_at) VALUES (?, ?, ?, ?)`,
		key, payload, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// CacheDelete removes one entry.
func (s *Store) CacheDelete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// CacheDeleteByPrefix removes every entry whose key starts with prefix.
func (s *Store) CacheDeleteByPrefix(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key LIKE ? || '%'`, prefix)
	if err != nil {
		return fmt.Errorf("failed to delete cache entries with prefix %s: %w", prefix, err)
	}
	return nil
}

// CacheDeleteExpired sweeps entries whose expiry has passed.
func (s *Store) CacheDeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

// CacheClear removes all entries.
func (s *Store) CacheClear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
