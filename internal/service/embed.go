package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/reelstash/reelstash/internal/cache"
	"github.com/reelstash/reelstash/internal/store"
)

// ErrEmbeddingsDisabled is returned by semantic operations when no embedder
// is configured.
var ErrEmbeddingsDisabled = errors.New("embeddings not configured")

const embedBatchSize = 128

// embeddingText is what gets embedded for a catalog row.
func embeddingText(title, description string) string {
	if description == "" {
		return title
	}
	return fmt.Sprintf("%s. %s", title, description)
}

// EmbedMissing embeds segmented rows that have no vector yet, in batches,
// until none remain or ctx is cancelled. Returns how many rows were embedded.
func (c *Catalog) EmbedMissing(ctx context.Context) (int, error) {
	if c.opts.Embedder == nil {
		return 0, ErrEmbeddingsDisabled
	}

	embedded := 0
	for {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		rows, err := c.store.ListSegmentedWithoutEmbeddings(ctx, embedBatchSize)
		if err != nil {
			return embedded, err
		}
		if len(rows) == 0 {
			return embedded, nil
		}

		texts := make([]string, len(rows))
		ids := make([]int64, len(rows))
		for i, r := range rows {
			texts[i] = embeddingText(r.Title, r.Description)
			ids[i] = r.ID
		}

		vecs, err := c.opts.Embedder.Embed(ctx, texts, "document")
		if err != nil {
			return embedded, fmt.Errorf("embed batch: %w", err)
		}
		if err := c.store.StoreEmbeddings(ctx, ids, vecs); err != nil {
			return embedded, err
		}
		embedded += len(rows)
	}
}

// SemanticSearch embeds the query and returns the nearest catalog rows.
func (c *Catalog) SemanticSearch(ctx context.Context, query string, limit int) ([]store.SemanticResult, error) {
	if c.opts.Embedder == nil {
		return nil, ErrEmbeddingsDisabled
	}
	vecs, err := c.opts.Embedder.Embed(ctx, []string{query}, "query")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}
	return c.store.SemanticSearch(ctx, vecs[0], limit)
}

// RunEmbeddingWorker consumes embedding jobs from the Redis queue until ctx
// is cancelled. Intended to run as a goroutine owned by main.
func (c *Catalog) RunEmbeddingWorker(ctx context.Context) {
	if c.opts.Redis == nil || c.opts.Embedder == nil {
		return
	}
	log.Printf("embedding worker: started")
	for {
		if ctx.Err() != nil {
			log.Printf("embedding worker: stopped")
			return
		}
		job, err := c.opts.Redis.Dequeue(ctx, cache.DefaultQueue, 5*time.Second)
		if err != nil {
			log.Printf("embedding worker: dequeue: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		n, err := c.EmbedMissing(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("embedding worker: catalog v%s: %v", job.CatalogVersion, err)
			continue
		}
		if n > 0 {
			log.Printf("embedding worker: embedded %d rows for catalog v%s", n, job.CatalogVersion)
		}
	}
}
