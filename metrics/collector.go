// Package metrics provides Prometheus metrics for the enrichment pipeline.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"news-enricher/balancer"
	"news-enricher/cache"
	"news-enricher/queue"
)

var (
	// GenerationsTotal counts commentary generation attempts.
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enricher",
			Name:      "generations_total",
			Help:      "Total number of commentary generation attempts",
		},
		[]string{"section", "status"},
	)

	// GenerationDuration measures commentary generation duration.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "enricher",
			Name:      "generation_duration_seconds",
			Help:      "Duration of commentary generation in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"section"},
	)

	// FetchesTotal counts section pulls by outcome.
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enricher",
			Name:      "fetches_total",
			Help:      "Total number of section fetches",
		},
		[]string{"section", "status"},
	)
)

// RecordGeneration records one commentary generation attempt.
func RecordGeneration(section, status string, duration float64) {
	GenerationsTotal.WithLabelValues(section, status).Inc()
	GenerationDuration.WithLabelValues(section).Observe(duration)
}

// RecordFetch records one section fetch.
func RecordFetch(section, status string) {
	FetchesTotal.WithLabelValues(section, status).Inc()
}

// Snapshot metric descriptors. These read the pipeline's own stats
// counters at scrape time instead of double-counting in the hot path.
var (
	queueJobsDesc = prometheus.NewDesc(
		"enricher_queue_jobs",
		"Number of queue jobs by state",
		[]string{"state"}, nil,
	)
	cacheHitsDesc = prometheus.NewDesc(
		"enricher_cache_hits_total",
		"Tiered cache hits",
		nil, nil,
	)
	cacheMissesDesc = prometheus.NewDesc(
		"enricher_cache_misses_total",
		"Tiered cache misses",
		nil, nil,
	)
	shardRequestsDesc = prometheus.NewDesc(
		"enricher_shard_daily_requests",
		"Commands routed to each cache shard in the current UTC day",
		[]string{"shard"}, nil,
	)
	shardHealthyDesc = prometheus.NewDesc(
		"enricher_shard_healthy",
		"Shard health (1 = healthy, 0 = unhealthy or dead)",
		[]string{"shard"}, nil,
	)
	credentialTokensDesc = prometheus.NewDesc(
		"enricher_credential_tokens_used",
		"Tokens or requests charged to each credential in the current UTC day",
		[]string{"pool", "credential"}, nil,
	)
	credentialsAliveDesc = prometheus.NewDesc(
		"enricher_credentials_alive",
		"Number of usable credentials per pool",
		[]string{"pool"}, nil,
	)
)

// SnapshotCollector exposes queue, cache, and key-pool stats as gauges.
type SnapshotCollector struct {
	queueStats func() queue.Stats
	cacheStats func() cache.TieredStats
	poolStats  map[string]func() balancer.Stats
}

// NewSnapshotCollector builds the collector over stats snapshot functions.
// Nil functions are skipped so partial wiring stays valid.
func NewSnapshotCollector(queueStats func() queue.Stats, cacheStats func() cache.TieredStats, poolStats map[string]func() balancer.Stats) *SnapshotCollector {
	return &SnapshotCollector{
		queueStats: queueStats,
		cacheStats: cacheStats,
		poolStats:  poolStats,
	}
}

// Describe implements prometheus.Collector.
func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueJobsDesc
	ch <- cacheHitsDesc
	ch <- cacheMissesDesc
	ch <- shardRequestsDesc
	ch <- shardHealthyDesc
	ch <- credentialTokensDesc
	ch <- credentialsAliveDesc
}

// Collect implements prometheus.Collector.
func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c.queueStats != nil {
		qs := c.queueStats()
		ch <- prometheus.MustNewConstMetric(queueJobsDesc, prometheus.GaugeValue, float64(qs.Waiting), "waiting")
		ch <- prometheus.MustNewConstMetric(queueJobsDesc, prometheus.GaugeValue, float64(qs.Active), "active")
		ch <- prometheus.MustNewConstMetric(queueJobsDesc, prometheus.GaugeValue, float64(qs.Delayed), "delayed")
		ch <- prometheus.MustNewConstMetric(queueJobsDesc, prometheus.GaugeValue, float64(qs.Completed), "completed")
		ch <- prometheus.MustNewConstMetric(queueJobsDesc, prometheus.GaugeValue, float64(qs.Failed), "failed")
	}

	if c.cacheStats != nil {
		cs := c.cacheStats()
		ch <- prometheus.MustNewConstMetric(cacheHitsDesc, prometheus.CounterValue, float64(cs.Hits))
		ch <- prometheus.MustNewConstMetric(cacheMissesDesc, prometheus.CounterValue, float64(cs.Misses))
		for _, shard := range cs.Shards {
			id := strconv.Itoa(shard.ID)
			ch <- prometheus.MustNewConstMetric(shardRequestsDesc, prometheus.GaugeValue, float64(shard.DailyRequests), id)
			healthy := 0.0
			if shard.Healthy && !shard.Dead {
				healthy = 1.0
			}
			ch <- prometheus.MustNewConstMetric(shardHealthyDesc, prometheus.GaugeValue, healthy, id)
		}
	}

	for pool, stats := range c.poolStats {
		if stats == nil {
			continue
		}
		ps := stats()
		ch <- prometheus.MustNewConstMetric(credentialsAliveDesc, prometheus.GaugeValue, float64(ps.Alive), pool)
		for _, cred := range ps.Credentials {
			ch <- prometheus.MustNewConstMetric(credentialTokensDesc, prometheus.GaugeValue,
				float64(cred.TokensUsedToday), pool, strconv.Itoa(cred.ID))
		}
	}
}

var _ prometheus.Collector = (*SnapshotCollector)(nil)
