package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/reelstash/reelstash/internal/cache"
	"github.com/reelstash/reelstash/internal/config"
	"github.com/reelstash/reelstash/internal/embedding"
	"github.com/reelstash/reelstash/internal/fetcher"
	"github.com/reelstash/reelstash/internal/server"
	"github.com/reelstash/reelstash/internal/service"
	"github.com/reelstash/reelstash/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env DATABASE_URL")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Run migrations.
	absMigrations, err := filepath.Abs("migrations")
	if err != nil {
		absMigrations = "migrations"
	}
	if _, err := os.Stat(absMigrations); err != nil {
		if exe, e := os.Executable(); e == nil {
			absMigrations = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	// The schema needs pg_trgm and vector before the index migrations run.
	if err := store.EnsureExtensions(cfg.DatabaseURL); err != nil {
		fmt.Fprintf(os.Stderr, "extensions: %v\n", err)
		os.Exit(1)
	}

	migrationsPath := "file://" + absMigrations
	if err := store.RunMigrations(cfg.DatabaseURL, migrationsPath); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	// Create embedding client if VOYAGE_API_KEY is configured.
	var embedder *embedding.Client
	if cfg.VoyageAPIKey != "" {
		embedder = embedding.NewClient(cfg.VoyageAPIKey, cfg.VoyageModel)
		fmt.Fprintln(os.Stderr, "semantic search enabled (VoyageAI)")
	} else {
		fmt.Fprintln(os.Stderr, "semantic search disabled (VOYAGE_API_KEY not set)")
	}

	// Connect to Redis if REDIS_URL is configured.
	var rds *cache.Redis
	var appStore store.Store = pg
	if cfg.RedisURL != "" {
		rds, err = cache.New(cfg.RedisURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer rds.Close()

		if err := rds.Ping(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "redis ping: %v\n", err)
			os.Exit(1)
		}

		appStore = store.NewCachedStore(pg, rds)
		fmt.Fprintln(os.Stderr, "redis connected (caching enabled)")
	} else {
		fmt.Fprintln(os.Stderr, "redis disabled (REDIS_URL not set)")
	}

	fetch := fetcher.NewClient(
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithTimeout(cfg.Timeout),
	)

	opts := service.Options{
		IndexURL:     cfg.IndexURL,
		CacheTTL:     cfg.CacheTTL,
		BatchSize:    cfg.BatchSize,
		FetchWorkers: cfg.FetchWorkers,
		Redis:        rds,
	}
	if embedder != nil {
		opts.Embedder = embedder
	}
	catalog := service.New(appStore, fetch, opts)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if rds != nil && embedder != nil {
		go catalog.RunEmbeddingWorker(ctx)
	}
	if cfg.RefreshInterval > 0 && cfg.IndexURL != "" {
		go runRefreshTicker(ctx, catalog, cfg.RefreshInterval)
	}

	srv := server.New(appStore, catalog, cfg)
	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

// runRefreshTicker refreshes the catalog on a fixed interval, starting with
// one immediate pass so a cold store fills without waiting a full period.
func runRefreshTicker(ctx context.Context, catalog *service.Catalog, interval time.Duration) {
	log.Printf("periodic refresh every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		if _, err := catalog.Refresh(ctx, false); err != nil {
			if errors.Is(err, service.ErrRefreshInProgress) {
				return
			}
			log.Printf("periodic refresh: %v", err)
		}
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
