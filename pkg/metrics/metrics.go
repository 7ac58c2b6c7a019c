package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vaultscope_build_info",
			Help: "Build information of vaultscope",
		},
		[]string{"version", "commit", "date"},
	)

	ViewRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultscope_view_refresh_total",
			Help: "Total number of view refreshes",
		},
		[]string{"stage", "status"},
	)

	ViewRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultscope_view_refresh_duration_seconds",
			Help:    "Duration of view refreshes",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 0.05s to ~205s
		},
		[]string{"stage"},
	)

	ChainBatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultscope_chain_batch_total",
			Help: "Total number of batched chain read round trips",
		},
		[]string{"mode", "status"},
	)

	ChainCallsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultscope_chain_calls_total",
			Help: "Total number of individual contract calls issued, batched or not",
		},
	)

	QuoteFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultscope_quote_fetch_total",
			Help: "Total number of price quote fetches against the quote source",
		},
		[]string{"status"},
	)

	QuoteCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultscope_quote_cache_total",
			Help: "Total number of price cache lookups",
		},
		[]string{"result"},
	)

	StaleReadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultscope_stale_reads_total",
			Help: "Total number of user positions observed across mismatched chain states",
		},
	)
)
