// TweetPulse - Real-Time Tweet Ingestion and Sentiment Analytics
// Copyright 2026 TweetPulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tweetpulse/tweetpulse

// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline: stream consumption, deduplication, enrichment, storage fan-out
// and batch persistence. Collectors are registered via promauto and served
// on the ops HTTP endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream consumption
	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_messages_consumed_total",
			Help: "Total messages read from the ingest stream",
		},
		[]string{"consumer"},
	)

	MessagesAcked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_messages_acked_total",
			Help: "Total messages acknowledged after successful processing",
		},
		[]string{"consumer"},
	)

	MessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_messages_failed_total",
			Help: "Total messages left pending for redelivery after a processor error",
		},
		[]string{"consumer"},
	)

	PoisonMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_poison_messages_total",
			Help: "Total malformed messages acknowledged and dropped",
		},
	)

	// Deduplication
	DuplicatesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_duplicates_total",
			Help: "Total messages suppressed as duplicates",
		},
	)

	FilterFalsePositives = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_filter_false_positives_total",
			Help: "Filter hits reconciled as novel by the confirmation set",
		},
	)

	SeenSetCardinality = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_seen_cardinality",
			Help: "Approximate cardinality of the dedup confirmation set",
		},
	)

	// Enrichment
	EnrichmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_duration_seconds",
			Help:    "Duration of single-record enrichment",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend"},
	)

	EnrichmentDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_degraded_total",
			Help: "Enrichment stages that fell back to their neutral result",
		},
		[]string{"stage"}, // "language", "sentiment"
	)

	// Storage fan-out
	CacheStores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotcache_stores_total",
			Help: "Total records written to the hot cache",
		},
	)

	CacheStoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotcache_store_errors_total",
			Help: "Total hot cache store failures",
		},
	)

	StagingFlushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staging_flushes_total",
			Help: "Total staging buffer flushes to columnar files",
		},
	)

	StagingFlushRecords = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "staging_flush_records",
			Help:    "Records per staging flush",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
		},
	)

	StagingFlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "staging_flush_errors_total",
			Help: "Total staging flush failures",
		},
	)

	// Batch writer
	BatchFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_flush_duration_seconds",
			Help:    "Duration of batch writer flushes including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
	)

	BatchFlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_flush_size",
			Help:    "Records per batch writer flush",
			Buckets: []float64{1, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	BatchFlushFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_flush_failures_total",
			Help: "Batch flushes that did not persist, by reason",
		},
		[]string{"reason"}, // "lock_contention", "db_error"
	)

	BatchRecordsDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_records_dead_lettered_total",
			Help: "Records dropped to the dead-letter log after an irrecoverable store error",
		},
	)

	BatchRecordsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_records_upserted_total",
			Help: "Total records upserted into the relational store",
		},
	)

	// Distributed lock
	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributed_lock_acquisitions_total",
			Help: "Lock acquisition attempts by outcome",
		},
		[]string{"outcome"}, // "acquired", "contended", "error"
	)

	StaleLocksSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distributed_lock_stale_swept_total",
			Help: "Locks without expiration removed by the integrity sweep",
		},
	)
)

// ObserveEnrichment records a single enrichment duration for a backend.
func ObserveEnrichment(backend string, elapsed time.Duration) {
	EnrichmentDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// ObserveBatchFlush records the duration and size of a successful flush.
func ObserveBatchFlush(elapsed time.Duration, records int) {
	BatchFlushDuration.Observe(elapsed.Seconds())
	BatchFlushSize.Observe(float64(records))
	BatchRecordsUpserted.Add(float64(records))
}
