// Package blockcache implements the bounded per-chain LRU mapping block
// number to block timestamp (spec §4.5). Block timestamps are immutable
// facts about immutable blocks, so entries never need invalidation —
// orphaned block numbers from a reorg simply age out by LRU eviction.
package blockcache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/erigontech/txindexer/internal/metrics"
)

// Fetcher resolves a block's timestamp, rate-budgeted by the caller.
// internal/rpcclient.Client.BlockTimestamp satisfies this.
type Fetcher func(blockNumber uint64) (int64, error)

// Cache is a bounded LRU of block_number -> unix timestamp, scoped to one
// chain. It is owned exclusively by that chain's Poller; no cross-task
// sharing is needed (spec §4.3/§5 shared-resource policy).
type Cache struct {
	chainID string
	lru     *lru.Cache[uint64, int64]
}

// New builds a Cache with room for size entries. size <= 0 falls back to
// the spec default of 100.
func New(chainID string, size int) (*Cache, error) {
	if size <= 0 {
		size = 100
	}
	l, err := lru.New[uint64, int64](size)
	if err != nil {
		return nil, err
	}
	return &Cache{chainID: chainID, lru: l}, nil
}

// GetOrFetch returns the cached timestamp for blockNumber, fetching and
// inserting it via fetch on a miss.
func (c *Cache) GetOrFetch(blockNumber uint64, fetch Fetcher) (int64, error) {
	if ts, ok := c.lru.Get(blockNumber); ok {
		metrics.BlockCacheHitsTotal.WithLabelValues(c.chainID).Inc()
		return ts, nil
	}
	metrics.BlockCacheMissesTotal.WithLabelValues(c.chainID).Inc()
	ts, err := fetch(blockNumber)
	if err != nil {
		return 0, err
	}
	c.lru.Add(blockNumber, ts)
	return ts, nil
}

// Len reports the current number of cached entries, bounded by the
// configured size — used to assert the bounded-resource invariant in
// tests.
func (c *Cache) Len() int {
	return c.lru.Len()
}
