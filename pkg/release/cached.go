package release

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rainxch/githubstore/pkg/logger"
	"github.com/rainxch/githubstore/pkg/model"
	"github.com/rainxch/githubstore/pkg/store"
	"github.com/sirupsen/logrus"
)

// cacheKeyPrefix namespaces release lookups in the cache table, so the
// whole class of entries can be invalidated with one prefix delete.
const cacheKeyPrefix = "release:"

// ResponseCache is the subset of the store's cache table the cached
// source reads and writes.
type ResponseCache interface {
	CacheGet(ctx context.Context, key string, now time.Time) (*store.CacheEntry, bool, error)
	CachePut(ctx context.Context, key, payload string, now time.Time, ttl time.Duration) error
}

// CachedSource wraps a Source with a short-lived response cache so
// back-to-back checks (the immediate run after arming, a manual "check
// now") do not spend quota on repositories fetched moments ago.
type CachedSource struct {
	inner Source
	cache ResponseCache
	ttl   time.Duration
	now   func() time.Time
}

var _ Source = (*CachedSource)(nil)

// NewCachedSource wraps inner with a cache of the given TTL.
func NewCachedSource(inner Source, cache ResponseCache, ttl time.Duration) *CachedSource {
	return &CachedSource{inner: inner, cache: cache, ttl: ttl, now: time.Now}
}

// LatestRelease serves from the cache when a fresh entry exists,
// otherwise delegates and stores the result. Cache failures degrade to a
// direct fetch, never to an error.
func (s *CachedSource) LatestRelease(ctx context.Context, ref model.RepoRef) (*model.Release, error) {
	key := cacheKey(ref)
	if entry, ok, err := s.cache.CacheGet(ctx, key, s.now()); err == nil && ok {
		var rel model.Release
		if err := json.Unmarshal([]byte(entry.Payload), &rel); err == nil {
			return &rel, nil
		}
	}

	rel, err := s.inner.LatestRelease(ctx, ref)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(rel); err == nil {
		if err := s.cache.CachePut(ctx, key, string(payload), s.now(), s.ttl); err != nil {
			logger.Debug("failed to cache release", logrus.Fields{"key": key, "error": err})
		}
	}
	return rel, nil
}

func cacheKey(ref model.RepoRef) string {
	return fmt.Sprintf("%s%s/%s", cacheKeyPrefix, ref.Owner, ref.Name)
}

// InvalidateAll drops every cached release lookup.
func InvalidateAll(ctx context.Context, s *store.Store) error {
	return s.CacheDeleteByPrefix(ctx, cacheKeyPrefix)
}
