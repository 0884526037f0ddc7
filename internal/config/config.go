package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("database_url is required")

// Config holds application configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	ServerPort  string `yaml:"server_port" env:"SERVER_PORT"`

	IndexURL  string        `yaml:"index_url" env:"INDEX_URL"`
	UserAgent string        `yaml:"user_agent" env:"FETCHER_USER_AGENT"`
	Timeout   time.Duration `yaml:"timeout" env:"FETCHER_TIMEOUT"`

	PageSize        int           `yaml:"page_size" env:"PAGE_SIZE"`
	MaxPageSize     int           `yaml:"max_page_size" env:"MAX_PAGE_SIZE"`
	BatchSize       int           `yaml:"batch_size" env:"BATCH_SIZE"`
	FetchWorkers    int           `yaml:"fetch_workers" env:"FETCH_WORKERS"`
	CacheTTL        time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"REFRESH_INTERVAL"` // 0 = manual only

	VoyageAPIKey string `yaml:"voyage_api_key" env:"VOYAGE_API_KEY"`
	VoyageModel  string `yaml:"voyage_model" env:"VOYAGE_MODEL"`
}

// Load builds config from environment variables. If DATABASE_URL is not set,
// Load tries .env.local and .env first. DATABASE_URL is required; everything
// else has a default or is optional.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		ServerPort:   os.Getenv("SERVER_PORT"),
		IndexURL:     os.Getenv("INDEX_URL"),
		UserAgent:    os.Getenv("FETCHER_USER_AGENT"),
		VoyageAPIKey: os.Getenv("VOYAGE_API_KEY"),
		VoyageModel:  os.Getenv("VOYAGE_MODEL"),
	}
	c.Timeout = envDuration("FETCHER_TIMEOUT")
	c.CacheTTL = envDuration("CACHE_TTL")
	c.RefreshInterval = envDuration("REFRESH_INTERVAL")
	c.PageSize = envInt("PAGE_SIZE")
	c.MaxPageSize = envInt("MAX_PAGE_SIZE")
	c.BatchSize = envInt("BATCH_SIZE")
	c.FetchWorkers = envInt("FETCH_WORKERS")

	c.applyDefaults()
	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return c, nil
}

// applyDefaults fills the zero values shared by the env and file loaders.
func (c *Config) applyDefaults() {
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.UserAgent == "" {
		c.UserAgent = "ReelStash/1.0"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 200
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = 4
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
}

func envDuration(key string) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func envInt(key string) int {
	s := os.Getenv(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
