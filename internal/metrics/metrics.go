// Package metrics holds the Prometheus collectors shared by every ingestion
// component. Registration happens once via promauto at package init; the
// HTTP exposition endpoint itself is an external adapter, out of scope here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollerLagBlocks reports head-minus-last_safe_block per chain.
	PollerLagBlocks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "txindexer_poller_lag_blocks",
		Help: "Blocks between chain head and the last safely checkpointed block.",
	}, []string{"chain_id"})

	// PollerTicksTotal counts completed poll ticks, labeled by outcome.
	PollerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txindexer_poller_ticks_total",
		Help: "Total poll ticks by outcome (ok, partial, skipped, error).",
	}, []string{"chain_id", "outcome"})

	// TransfersPersistedTotal counts rows successfully upserted.
	TransfersPersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txindexer_transfers_persisted_total",
		Help: "Transfer rows successfully upserted, by chain.",
	}, []string{"chain_id"})

	// StoreErrorsTotal counts store-level write failures by classification.
	StoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txindexer_store_errors_total",
		Help: "Transfer store write failures by class (transient, permanent).",
	}, []string{"chain_id", "class"})

	// DLQDepth is the current number of items sitting in the dead letter queue.
	DLQDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txindexer_dlq_depth",
		Help: "Current dead letter queue depth.",
	})

	// DLQDroppedTotal counts items dropped after exhausting retries, or on overflow.
	DLQDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txindexer_dlq_dropped_total",
		Help: "Items dropped from the DLQ, by reason (retries_exhausted, overflow).",
	}, []string{"reason"})

	// RateBudgetWaitSeconds observes time spent waiting for a rate budget token.
	RateBudgetWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "txindexer_rate_budget_wait_seconds",
		Help:    "Time spent blocked acquiring a rate budget token.",
		Buckets: prometheus.DefBuckets,
	})

	// DedupHitsTotal counts dedup short-circuits that avoided a redundant upsert.
	DedupHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txindexer_dedup_hits_total",
		Help: "Logs skipped because the dedup index already knew the natural key.",
	}, []string{"chain_id"})

	// BlockCacheHitsTotal / BlockCacheMissesTotal track block-timestamp cache efficacy.
	BlockCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txindexer_block_cache_hits_total",
		Help: "Block metadata cache hits, by chain.",
	}, []string{"chain_id"})

	BlockCacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txindexer_block_cache_misses_total",
		Help: "Block metadata cache misses, by chain.",
	}, []string{"chain_id"})
)
