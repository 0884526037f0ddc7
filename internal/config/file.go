package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL     string `yaml:"database_url"`
	RedisURL        string `yaml:"redis_url"`
	ServerPort      string `yaml:"server_port"`
	IndexURL        string `yaml:"index_url"`
	UserAgent       string `yaml:"user_agent"`
	Timeout         string `yaml:"timeout"`
	PageSize        int    `yaml:"page_size"`
	MaxPageSize     int    `yaml:"max_page_size"`
	BatchSize       int    `yaml:"batch_size"`
	FetchWorkers    int    `yaml:"fetch_workers"`
	CacheTTL        string `yaml:"cache_ttl"`
	RefreshInterval string `yaml:"refresh_interval"`
	VoyageAPIKey    string `yaml:"voyage_api_key"`
	VoyageModel     string `yaml:"voyage_model"`
}

// LoadFromFile loads config from a YAML file. database_url is required.
// Durations are Go duration strings ("30s", "24h").
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	c := &Config{
		DatabaseURL:  f.DatabaseURL,
		RedisURL:     f.RedisURL,
		ServerPort:   f.ServerPort,
		IndexURL:     f.IndexURL,
		UserAgent:    f.UserAgent,
		PageSize:     f.PageSize,
		MaxPageSize:  f.MaxPageSize,
		BatchSize:    f.BatchSize,
		FetchWorkers: f.FetchWorkers,
		VoyageAPIKey: f.VoyageAPIKey,
		VoyageModel:  f.VoyageModel,
	}
	c.Timeout = parseDuration(f.Timeout)
	c.CacheTTL = parseDuration(f.CacheTTL)
	c.RefreshInterval = parseDuration(f.RefreshInterval)
	c.applyDefaults()
	return c, nil
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
