package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelstash/reelstash/internal/cache"
	"github.com/reelstash/reelstash/internal/models"
)

// Cache TTLs per entity type. These bound staleness between refreshes; the
// real invalidation happens when a refresh completes.
const (
	ttlList     = 1 * time.Minute
	ttlEntry    = 5 * time.Minute
	ttlTop      = 5 * time.Minute
	ttlDistinct = 10 * time.Minute
	ttlSearch   = 2 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer. Read-heavy browse
// queries are served from cache when possible; the refresh path invalidates
// everything it may have changed.
type CachedStore struct {
	inner Store
	cache *cache.Redis
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{inner: inner, cache: c}
}

// --- cached read operations ---

// entryListResult caches the ListEntries tuple.
type entryListResult struct {
	Entries []models.Entry `json:"entries"`
	Total   int            `json:"total"`
}

func (c *CachedStore) ListEntries(ctx context.Context, filter EntryFilter) ([]models.Entry, int, error) {
	key := fmt.Sprintf("catalog:full:%s", filterHash(filter))
	if v, err := cache.Get[entryListResult](ctx, c.cache, key); err == nil {
		return v.Entries, v.Total, nil
	}
	entries, total, err := c.inner.ListEntries(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if err := cache.Set(ctx, c.cache, key, entryListResult{Entries: entries, Total: total}, ttlList); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return entries, total, nil
}

// segmentedListResult caches the ListSegmented tuple.
type segmentedListResult struct {
	Entries []models.SegmentedEntry `json:"entries"`
	Total   int                     `json:"total"`
}

func (c *CachedStore) ListSegmented(ctx context.Context, filter EntryFilter) ([]models.SegmentedEntry, int, error) {
	key := fmt.Sprintf("catalog:seg:%s", filterHash(filter))
	if v, err := cache.Get[segmentedListResult](ctx, c.cache, key); err == nil {
		return v.Entries, v.Total, nil
	}
	entries, total, err := c.inner.ListSegmented(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if err := cache.Set(ctx, c.cache, key, segmentedListResult{Entries: entries, Total: total}, ttlList); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return entries, total, nil
}

func (c *CachedStore) GetEntryByID(ctx context.Context, id int64) (*models.Entry, error) {
	key := fmt.Sprintf("catalog:entry:%d", id)
	if v, err := cache.Get[models.Entry](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	e, err := c.inner.GetEntryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, e, ttlEntry); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return e, nil
}

func (c *CachedStore) GetSegmentedByID(ctx context.Context, id int64) (*models.SegmentedEntry, error) {
	key := fmt.Sprintf("catalog:seg-entry:%d", id)
	if v, err := cache.Get[models.SegmentedEntry](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	s, err := c.inner.GetSegmentedByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, s, ttlEntry); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return s, nil
}

func (c *CachedStore) TopRated(ctx context.Context, limit int) ([]models.SegmentedEntry, error) {
	key := fmt.Sprintf("catalog:top:%d", limit)
	if v, err := cache.Get[[]models.SegmentedEntry](ctx, c.cache, key); err == nil {
		return v, nil
	}
	top, err := c.inner.TopRated(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, top, ttlTop); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return top, nil
}

func (c *CachedStore) DistinctGenres(ctx context.Context) ([]string, error) {
	return c.distinct(ctx, "distinct:genres", c.inner.DistinctGenres)
}

func (c *CachedStore) DistinctCountries(ctx context.Context) ([]string, error) {
	return c.distinct(ctx, "distinct:countries", c.inner.DistinctCountries)
}

func (c *CachedStore) DistinctYears(ctx context.Context) ([]string, error) {
	return c.distinct(ctx, "distinct:years", c.inner.DistinctYears)
}

func (c *CachedStore) distinct(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	if v, err := cache.Get[[]string](ctx, c.cache, key); err == nil {
		return v, nil
	}
	values, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, values, ttlDistinct); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return values, nil
}

// semanticSearchResult caches the SemanticSearch return value.
type semanticSearchResult struct {
	Results []SemanticResult `json:"results"`
}

func (c *CachedStore) SemanticSearch(ctx context.Context, queryVec []float32, limit int) ([]SemanticResult, error) {
	key := fmt.Sprintf("search:%s:%d", vecHash(queryVec), limit)
	if v, err := cache.Get[semanticSearchResult](ctx, c.cache, key); err == nil {
		return v.Results, nil
	}
	results, err := c.inner.SemanticSearch(ctx, queryVec, limit)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, semanticSearchResult{Results: results}, ttlSearch); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return results, nil
}

// --- write operations with cache invalidation ---

func (c *CachedStore) ReplaceEntries(ctx context.Context, entries []models.Entry, meta models.CacheMetadata) error {
	if err := c.inner.ReplaceEntries(ctx, entries, meta); err != nil {
		return err
	}
	c.InvalidateCatalog(ctx)
	return nil
}

func (c *CachedStore) ClearSegmented(ctx context.Context) error {
	if err := c.inner.ClearSegmented(ctx); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "catalog:seg*")
	return nil
}

func (c *CachedStore) InsertSegmented(ctx context.Context, batch []models.SegmentedEntry) error {
	// List caches are refreshed once the whole rebuild lands, not per batch.
	return c.inner.InsertSegmented(ctx, batch)
}

func (c *CachedStore) SetMetadata(ctx context.Context, meta models.CacheMetadata) error {
	if err := c.inner.SetMetadata(ctx, meta); err != nil {
		return err
	}
	c.invalidate(ctx, "metadata:"+meta.Key)
	return nil
}

func (c *CachedStore) GetMetadata(ctx context.Context, key string) (*models.CacheMetadata, error) {
	cacheKey := "metadata:" + key
	if v, err := cache.Get[models.CacheMetadata](ctx, c.cache, cacheKey); err == nil {
		return &v, nil
	}
	m, err := c.inner.GetMetadata(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, cacheKey, m, ttlEntry); err != nil {
		log.Printf("cache: set %s: %v", cacheKey, err)
	}
	return m, nil
}

func (c *CachedStore) DeleteAllEntries(ctx context.Context) error {
	if err := c.inner.DeleteAllEntries(ctx); err != nil {
		return err
	}
	c.InvalidateCatalog(ctx)
	return nil
}

func (c *CachedStore) DeleteByCategory(ctx context.Context, category string) error {
	if err := c.inner.DeleteByCategory(ctx, category); err != nil {
		return err
	}
	c.InvalidateCatalog(ctx)
	return nil
}

func (c *CachedStore) StoreEmbeddings(ctx context.Context, ids []int64, embeddings [][]float32) error {
	if err := c.inner.StoreEmbeddings(ctx, ids, embeddings); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "search:*")
	return nil
}

// --- passthrough (no caching) ---

func (c *CachedStore) CountEntries(ctx context.Context) (int64, error) {
	return c.inner.CountEntries(ctx)
}

func (c *CachedStore) CountSegmented(ctx context.Context) (int64, error) {
	return c.inner.CountSegmented(ctx)
}

func (c *CachedStore) ListSegmentedWithoutEmbeddings(ctx context.Context, limit int) ([]models.SegmentedEntry, error) {
	return c.inner.ListSegmentedWithoutEmbeddings(ctx, limit)
}

// --- helpers ---

// InvalidateCatalog drops every derived view of the catalog. Called after a
// refresh lands so readers never see a page from the old catalog paired with
// a total from the new one.
func (c *CachedStore) InvalidateCatalog(ctx context.Context) {
	c.invalidatePattern(ctx, "catalog:*", "distinct:*", "search:*", "metadata:*")
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && err != redis.Nil {
		log.Printf("cache: del %v: %v", keys, err)
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			log.Printf("cache: del pattern %s: %v", p, err)
		}
	}
}

// filterHash produces a short deterministic hash for an EntryFilter so it can
// be used as part of a cache key.
func filterHash(f EntryFilter) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%v|%v|%d|%d",
		f.Category, f.Genre, f.Country, f.Year, f.Search,
		f.AllowedRatings, f.IncludeUnrated, f.Page, f.PageSize)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}

// vecHash produces a short hash for a float32 vector.
func vecHash(v []float32) string {
	raw := fmt.Sprintf("%v", v)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
