// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

// Package metrics exposes Prometheus instrumentation for the pipeline:
// outbound HTTP behavior, per-stage event counts, enrichment batches,
// geocoding and persistence. Collectors are registered at init via
// promauto; scrape them with Serve or a promhttp handler.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartelera_http_requests_total",
			Help: "Total outbound HTTP requests by target domain and status code",
		},
		[]string{"domain", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cartelera_http_request_duration_seconds",
			Help:    "Outbound HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"domain"},
	)

	HTTPRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartelera_http_retries_total",
			Help: "Total outbound HTTP retry attempts",
		},
		[]string{"domain"},
	)

	BackoffLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cartelera_backoff_level",
			Help: "Current rate-limit backoff level per domain (0-5)",
		},
		[]string{"domain"},
	)

	// Pipeline stages
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartelera_events_total",
			Help: "Events counted per source and pipeline stage outcome",
		},
		[]string{"source", "stage"},
	)

	SourceRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cartelera_source_run_duration_seconds",
			Help:    "Duration of a full pipeline run per source",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"source"},
	)

	SourceRunErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartelera_source_run_errors_total",
			Help: "Pipeline runs that failed, per source",
		},
		[]string{"source"},
	)

	SourceLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cartelera_source_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful run per source",
		},
		[]string{"source"},
	)

	// Enrichment
	EnrichBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cartelera_enrich_batch_duration_seconds",
			Help:    "LLM enrichment batch duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 90},
		},
		[]string{"model"},
	)

	EnrichBatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartelera_enrich_batch_errors_total",
			Help: "Failed LLM enrichment batches by model",
		},
		[]string{"model"},
	)

	EnrichBatchSplits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartelera_enrich_batch_splits_total",
			Help: "Enrichment batches split after truncated model output",
		},
	)

	EnrichCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartelera_enrich_cache_hits_total",
			Help: "Enrichment results served from the local memo cache",
		},
	)

	// Classification
	ClassifyFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartelera_classify_fallbacks_total",
			Help: "Events classified without embeddings, by reason",
		},
		[]string{"reason"},
	)

	// Images
	ImagesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartelera_images_resolved_total",
			Help: "Images resolved per provider (including curated fallback)",
		},
		[]string{"provider"},
	)

	// Geocoding
	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartelera_geocode_requests_total",
			Help: "Geocoding lookups by outcome (hit, miss, cached, error)",
		},
		[]string{"outcome"},
	)

	// Deduplication
	DedupMerges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartelera_dedup_merges_total",
			Help: "Cross-source duplicate pairs merged",
		},
	)

	DedupDiscards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartelera_dedup_discards_total",
			Help: "Duplicates discarded without merging (improvement below threshold)",
		},
	)

	// Persistence
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cartelera_db_query_duration_seconds",
			Help:    "Duration of PostgreSQL operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartelera_db_query_errors_total",
			Help: "Total PostgreSQL operation errors",
		},
		[]string{"operation"},
	)

	// Publishing
	NATSPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartelera_nats_published_total",
			Help: "Event messages published to NATS JetStream",
		},
	)

	NATSPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cartelera_nats_publish_errors_total",
			Help: "Failed NATS JetStream publishes",
		},
	)
)

// RecordHTTPRequest records one outbound request.
func RecordHTTPRequest(domain string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(domain, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(domain).Observe(duration.Seconds())
}

// RecordHTTPTransportError records a request that never produced a status.
func RecordHTTPTransportError(domain string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(domain, "transport_error").Inc()
	HTTPRequestDuration.WithLabelValues(domain).Observe(duration.Seconds())
}

// RecordHTTPRetry records a retry attempt against a domain.
func RecordHTTPRetry(domain string) {
	HTTPRetriesTotal.WithLabelValues(domain).Inc()
}

// SetBackoffLevel publishes a domain's current backoff level.
func SetBackoffLevel(domain string, level int) {
	BackoffLevel.WithLabelValues(domain).Set(float64(level))
}

// RecordStage counts n events reaching a pipeline stage for a source.
func RecordStage(source, stage string, n int) {
	if n > 0 {
		EventsProcessed.WithLabelValues(source, stage).Add(float64(n))
	}
}

// RecordSourceRun records a completed per-source pipeline run.
func RecordSourceRun(source string, duration time.Duration, err error) {
	SourceRunDuration.WithLabelValues(source).Observe(duration.Seconds())
	if err != nil {
		SourceRunErrors.WithLabelValues(source).Inc()
		return
	}
	SourceLastSuccess.WithLabelValues(source).Set(float64(time.Now().Unix()))
}

// RecordEnrichBatch records one LLM batch call.
func RecordEnrichBatch(model string, duration time.Duration, err error) {
	EnrichBatchDuration.WithLabelValues(model).Observe(duration.Seconds())
	if err != nil {
		EnrichBatchErrors.WithLabelValues(model).Inc()
	}
}

// RecordDBQuery records one database operation.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
