package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh cycle instrumentation.
var (
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelstash",
		Name:      "refresh_cycles_total",
		Help:      "Refresh cycles by outcome (success, skipped, error).",
	}, []string{"outcome"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reelstash",
		Name:      "refresh_duration_seconds",
		Help:      "Wall time of full refresh cycles.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	PlaylistFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelstash",
		Name:      "playlist_fetches_total",
		Help:      "Playlist document fetches by outcome (ok, error).",
	}, []string{"outcome"})

	EntriesCached = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "reelstash",
		Name:      "entries_cached",
		Help:      "Entries currently persisted after the last refresh.",
	})

	SegmentedBatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reelstash",
		Name:      "segmented_batches_total",
		Help:      "Segmented batches committed across all refreshes.",
	})
)

// HTTP surface instrumentation.
var (
	PagesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelstash",
		Name:      "pages_served_total",
		Help:      "Catalog pages served by view (segmented, full).",
	}, []string{"view"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reelstash",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status class.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
