package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/reelstash/reelstash/internal/cache"
	"github.com/reelstash/reelstash/internal/metrics"
	"github.com/reelstash/reelstash/internal/models"
	"github.com/reelstash/reelstash/internal/store"
)

var (
	// ErrRefreshInProgress is returned when a refresh is requested while one
	// is already running. Requests are rejected, not queued.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrAllPlaylistsFailed is returned when not a single playlist document
	// could be fetched. The persisted catalog is left untouched.
	ErrAllPlaylistsFailed = errors.New("all playlist fetches failed")
	// ErrNoIndexURL is returned when refreshing without a configured index.
	ErrNoIndexURL = errors.New("no index url configured")
)

const (
	refreshLockKey = "reelstash:refresh:lock"
	refreshLockTTL = 15 * time.Minute

	defaultCacheTTL     = 24 * time.Hour
	defaultBatchSize    = 1000
	defaultFetchWorkers = 4
)

// Fetcher is the slice of the fetch client the engine needs.
type Fetcher interface {
	Index(ctx context.Context, url string) (*models.PlaylistIndex, error)
	Playlist(ctx context.Context, url string) (*models.Playlist, error)
}

// Embedder generates embedding vectors for catalog text.
type Embedder interface {
	Embed(ctx context.Context, texts []string, inputType string) ([][]float32, error)
}

// Progress reports one committed segmented batch out of the total.
type Progress struct {
	Batch        int `json:"batch"`
	TotalBatches int `json:"total_batches"`
}

// ProgressFunc receives a Progress after every committed batch.
type ProgressFunc func(Progress)

// UpdateStatus is the outcome of a version check against the remote index.
type UpdateStatus struct {
	UpdateAvailable bool `json:"update_available"`
	LocalVersion    int  `json:"local_version"`
	RemoteVersion   int  `json:"remote_version"`
}

// RefreshResult summarises a completed refresh cycle.
type RefreshResult struct {
	CycleID        string   `json:"cycle_id"`
	Version        int      `json:"version"`
	Entries        int      `json:"entries"`
	Skipped        bool     `json:"skipped"`
	PlaylistErrors []string `json:"playlist_errors,omitempty"`
}

// Options configures a Catalog engine. Zero values fall back to defaults.
type Options struct {
	IndexURL     string
	CacheTTL     time.Duration // how long persisted data counts as valid
	BatchSize    int           // segmented rows per committed batch
	FetchWorkers int           // concurrent playlist fetches
	Redis        *cache.Redis  // optional: distributed lock + embedding queue
	Embedder     Embedder      // optional: queue embedding work after refresh
	OnProgress   ProgressFunc  // optional: per-batch progress
}

// Catalog is the reconciliation engine: it decides whether the persisted
// catalog is still good, fetches and aggregates the remote one when it is
// not, and keeps the segmented projection in step.
type Catalog struct {
	store store.Store
	fetch Fetcher
	opts  Options

	busy atomic.Bool
	now  func() time.Time
}

// New creates a Catalog engine.
func New(st store.Store, fetch Fetcher, opts Options) *Catalog {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = defaultFetchWorkers
	}
	return &Catalog{
		store: st,
		fetch: fetch,
		opts:  opts,
		now:   time.Now,
	}
}

// HasValidCache reports whether the persisted catalog can be served as-is:
// metadata present, younger than the TTL, and at least one entry stored.
func (c *Catalog) HasValidCache(ctx context.Context) (bool, error) {
	meta, err := c.store.GetMetadata(ctx, models.CacheKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if meta.Age(c.now()) >= c.opts.CacheTTL {
		return false, nil
	}
	n, err := c.store.CountEntries(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CheckForUpdates fetches the index and compares versions. Freshness and
// validity are independent: a valid cache can still have an update pending.
func (c *Catalog) CheckForUpdates(ctx context.Context) (*UpdateStatus, error) {
	if c.opts.IndexURL == "" {
		return nil, ErrNoIndexURL
	}
	idx, err := c.fetch.Index(ctx, c.opts.IndexURL)
	if err != nil {
		return nil, err
	}
	local := c.localVersion(ctx)
	return &UpdateStatus{
		UpdateAvailable: idx.Version > local,
		LocalVersion:    local,
		RemoteVersion:   idx.Version,
	}, nil
}

// localVersion reads the stored version; missing or unparseable counts as 0,
// which makes any remote catalog look newer.
func (c *Catalog) localVersion(ctx context.Context) int {
	meta, err := c.store.GetMetadata(ctx, models.CacheKey)
	if err != nil {
		return 0
	}
	return meta.Version()
}

// Refresh runs one reconciliation cycle. Unless force is set, a remote
// version at or below the local one leaves the store untouched. At most one
// refresh runs at a time; a concurrent call gets ErrRefreshInProgress.
func (c *Catalog) Refresh(ctx context.Context, force bool) (*RefreshResult, error) {
	if c.opts.IndexURL == "" {
		return nil, ErrNoIndexURL
	}
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrRefreshInProgress
	}
	defer c.busy.Store(false)
	return c.run(ctx, force)
}

// StartRefresh claims the refresh slot and runs the cycle in the background
// with a detached context; large catalogs take longer than any HTTP write
// timeout. Returns ErrRefreshInProgress without starting anything when a
// cycle is already running.
func (c *Catalog) StartRefresh(force bool) error {
	if c.opts.IndexURL == "" {
		return ErrNoIndexURL
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrRefreshInProgress
	}
	go func() {
		defer c.busy.Store(false)
		if _, err := c.run(context.Background(), force); err != nil {
			log.Printf("background refresh: %v", err)
		}
	}()
	return nil
}

// Running reports whether a refresh cycle is in flight.
func (c *Catalog) Running() bool {
	return c.busy.Load()
}

// run is the cycle body; the caller holds the busy flag.
func (c *Catalog) run(ctx context.Context, force bool) (*RefreshResult, error) {
	// The Redis lock extends the at-most-one rule across replicas.
	if c.opts.Redis != nil {
		unlock, err := c.opts.Redis.TryLock(ctx, refreshLockKey, refreshLockTTL)
		if errors.Is(err, cache.ErrLocked) {
			return nil, ErrRefreshInProgress
		}
		if err != nil {
			log.Printf("refresh: lock unavailable, proceeding unlocked: %v", err)
		} else {
			defer unlock()
		}
	}

	cycle := uuid.NewString()[:8]
	started := c.now()
	log.Printf("refresh %s: checking index %s", cycle, c.opts.IndexURL)

	idx, err := c.fetch.Index(ctx, c.opts.IndexURL)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("refresh %s: %w", cycle, err)
	}

	local := c.localVersion(ctx)
	if !force && idx.Version <= local {
		valid, err := c.HasValidCache(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh %s: %w", cycle, err)
		}
		if valid {
			log.Printf("refresh %s: local v%d is current, serving cache", cycle, local)
			metrics.RefreshTotal.WithLabelValues("skipped").Inc()
			return &RefreshResult{CycleID: cycle, Version: local, Skipped: true}, nil
		}
	}

	log.Printf("refresh %s: fetching %d playlists (local v%d, remote v%d)",
		cycle, len(idx.Playlists), local, idx.Version)

	entries, fetchErrs, err := c.aggregate(ctx, idx.Playlists)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("refresh %s: %w", cycle, err)
	}

	meta := models.CacheMetadata{
		Key:          models.CacheKey,
		LastUpdated:  c.now(),
		DataVersion:  strconv.Itoa(idx.Version),
		PlaylistURLs: idx.Playlists,
	}
	if err := c.store.ReplaceEntries(ctx, entries, meta); err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("refresh %s: %w", cycle, err)
	}
	if err := c.rebuildSegmented(ctx, entries); err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("refresh %s: %w", cycle, err)
	}

	metrics.RefreshTotal.WithLabelValues("success").Inc()
	metrics.RefreshDuration.Observe(c.now().Sub(started).Seconds())
	metrics.EntriesCached.Set(float64(len(entries)))

	c.queueEmbeddings(ctx, meta.DataVersion)

	log.Printf("refresh %s: stored %d entries at v%d in %s",
		cycle, len(entries), idx.Version, c.now().Sub(started).Round(time.Millisecond))

	return &RefreshResult{
		CycleID:        cycle,
		Version:        idx.Version,
		Entries:        len(entries),
		PlaylistErrors: fetchErrs,
	}, nil
}

// aggregate fans out one fetch per playlist and merges the results: titleless
// entries are dropped, the category name is stamped as MainCategory, and
// duplicate titles keep the first entry seen. Partial failures are tolerated;
// only a complete wipeout aborts the cycle.
func (c *Catalog) aggregate(ctx context.Context, urls []string) ([]models.Entry, []string, error) {
	var (
		mu      sync.Mutex
		entries []models.Entry
		seen    = map[string]struct{}{}
		errs    []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.FetchWorkers)
	for _, url := range urls {
		g.Go(func() error {
			pl, err := c.fetch.Playlist(gctx, url)
			if err != nil {
				metrics.PlaylistFetchTotal.WithLabelValues("error").Inc()
				mu.Lock()
				errs = append(errs, err.Error())
				mu.Unlock()
				// A failed playlist never cancels its siblings.
				return nil
			}
			metrics.PlaylistFetchTotal.WithLabelValues("ok").Inc()

			mu.Lock()
			defer mu.Unlock()
			for _, cat := range pl.Categories {
				for _, e := range cat.Entries {
					if e.Title == "" {
						continue
					}
					if _, dup := seen[e.Title]; dup {
						continue
					}
					seen[e.Title] = struct{}{}
					e.MainCategory = cat.MainCategory
					entries = append(entries, e)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(errs) == len(urls) && len(urls) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrAllPlaylistsFailed, errs[0])
	}
	return entries, errs, nil
}

// rebuildSegmented derives the browse projection and writes it in committed
// batches, reporting progress after each one. ReplaceEntries already cleared
// the old rows via the FK cascade; ClearSegmented keeps the rebuild correct
// when invoked on its own.
func (c *Catalog) rebuildSegmented(ctx context.Context, entries []models.Entry) error {
	if err := c.store.ClearSegmented(ctx); err != nil {
		return err
	}

	size := c.opts.BatchSize
	total := (len(entries) + size - 1) / size
	for i := 0; i < len(entries); i += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + size
		if end > len(entries) {
			end = len(entries)
		}
		batch := make([]models.SegmentedEntry, 0, end-i)
		for _, e := range entries[i:end] {
			batch = append(batch, models.NewSegmentedEntry(e))
		}
		if err := c.store.InsertSegmented(ctx, batch); err != nil {
			return err
		}
		metrics.SegmentedBatches.Inc()
		if c.opts.OnProgress != nil {
			c.opts.OnProgress(Progress{Batch: i/size + 1, TotalBatches: total})
		}
	}
	return nil
}

// queueEmbeddings hands the post-refresh embedding work to the background
// worker. Best effort: the refresh already succeeded.
func (c *Catalog) queueEmbeddings(ctx context.Context, version string) {
	if c.opts.Redis == nil || c.opts.Embedder == nil {
		return
	}
	job := cache.EmbeddingJob{CatalogVersion: version}
	if err := c.opts.Redis.Enqueue(ctx, cache.DefaultQueue, job); err != nil {
		log.Printf("refresh: enqueue embedding job: %v", err)
	}
}
