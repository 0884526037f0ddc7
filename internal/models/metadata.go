package models

import (
	"strconv"
	"time"
)

// CacheKey is the single metadata row the catalog cache lives under.
const CacheKey = "playlist_data"

// CacheMetadata records what the store currently holds: when it was written,
// which catalog version it came from, and the playlist URLs that produced it.
type CacheMetadata struct {
	Key          string    `json:"key"`
	LastUpdated  time.Time `json:"lastUpdated"`
	DataVersion  string    `json:"dataVersion"`
	PlaylistURLs []string  `json:"playlistUrls"`
}

// Version parses DataVersion. Anything unparseable counts as 0, which makes
// any remote version look newer and forces a refresh instead of surfacing an
// error.
func (m CacheMetadata) Version() int {
	v, err := strconv.Atoi(m.DataVersion)
	if err != nil {
		return 0
	}
	return v
}

// Age returns how long ago the metadata was written.
func (m CacheMetadata) Age(now time.Time) time.Duration {
	return now.Sub(m.LastUpdated)
}
