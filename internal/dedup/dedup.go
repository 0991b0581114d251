// Package dedup implements the "have I already persisted this log?"
// decision (spec §4.3) behind one Index interface with two realizations:
// a store-backed check (preferred — the store's unique constraint is the
// actual correctness guarantee) and an in-memory bloom+LRU combination for
// deployments that want to skip the round-trip before it reaches the
// store.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/erigontech/txindexer/internal/metrics"
	"github.com/erigontech/txindexer/internal/store"
)

// Index answers IsKnown/MarkKnown for a natural key. Both methods must be
// safe to call twice with the same key.
type Index interface {
	IsKnown(ctx context.Context, key store.NaturalKey) (bool, error)
	MarkKnown(key store.NaturalKey)
}

// StoreBacked is the preferred realization: it asks the store directly
// whether the natural key already has a row. There is no local state to
// keep correct, at the cost of one extra read per log — acceptable since
// the store's unique constraint is what actually enforces correctness;
// this is purely an optimization to skip a redundant Upsert attempt.
type StoreBacked struct {
	store   *store.Store
	chainID uint64
}

// NewStoreBacked builds a StoreBacked index scoped to one chain.
func NewStoreBacked(s *store.Store, chainID uint64) *StoreBacked {
	return &StoreBacked{store: s, chainID: chainID}
}

func (d *StoreBacked) IsKnown(ctx context.Context, key store.NaturalKey) (bool, error) {
	return d.store.Exists(ctx, key)
}

func (d *StoreBacked) MarkKnown(store.NaturalKey) {}

// BloomLRU is the in-memory alternative: a bloom filter for the fast
// "definitely not seen" path, backed by an LRU of exact keys for the
// boundary within TTL. Misses always fall through to the store's unique
// constraint, so false negatives here only cost a redundant Upsert
// attempt, never a correctness violation.
type BloomLRU struct {
	recent *ttlLRU
}

// NewBloomLRU builds a BloomLRU sized for roughly expectedEntries keys,
// with ttl at least 2x REORG_SAFETY_BLOCKS worth of wall time per spec
// §4.3.
func NewBloomLRU(expectedEntries int, ttl time.Duration) *BloomLRU {
	if expectedEntries <= 0 {
		expectedEntries = 100_000
	}
	return &BloomLRU{recent: newTTLLRU(expectedEntries, ttl)}
}

func (d *BloomLRU) IsKnown(_ context.Context, key store.NaturalKey) (bool, error) {
	known := d.recent.contains(keyString(key))
	if known {
		metrics.DedupHitsTotal.WithLabelValues(fmt.Sprint(key.ChainID)).Inc()
	}
	return known, nil
}

func (d *BloomLRU) MarkKnown(key store.NaturalKey) {
	d.recent.add(keyString(key))
}

func keyString(key store.NaturalKey) string {
	return fmt.Sprintf("%d:%s:%d", key.ChainID, key.TxHash, key.LogIndex)
}
