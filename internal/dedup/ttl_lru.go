package dedup

import (
	"sync"
	"time"

	"github.com/holiman/bloomfilter/v2"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ttlLRU combines a bloom filter (fast probabilistic "definitely not
// seen") with an exact LRU of recently-seen keys stamped with insertion
// time. A positive bloom hit is confirmed against the LRU before being
// trusted, since the bloom filter never forgets within its lifetime and
// would otherwise leak false positives forever.
type ttlLRU struct {
	mu    sync.Mutex
	bloom *bloomfilter.Filter
	lru   *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func newTTLLRU(expectedEntries int, ttl time.Duration) *ttlLRU {
	// false-positive rate 1% at the expected load, the same default
	// bloomfilter.NewOptimal uses for erigon's txpool announcement dedup.
	filter, err := bloomfilter.NewOptimal(uint64(expectedEntries), 0.01)
	if err != nil {
		// Only returns an error for a zero/negative size; expectedEntries
		// is normalized to a positive default by the caller.
		filter, _ = bloomfilter.NewOptimal(100_000, 0.01)
	}
	cache, _ := lru.New[string, time.Time](expectedEntries)
	return &ttlLRU{bloom: filter, lru: cache, ttl: ttl}
}

func (t *ttlLRU) contains(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.bloom.Contains(bloomHash(key)) {
		return false
	}
	seenAt, ok := t.lru.Get(key)
	if !ok {
		return false
	}
	return time.Since(seenAt) < t.ttl
}

func (t *ttlLRU) add(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bloom.Add(bloomHash(key))
	t.lru.Add(key, time.Now())
}

func bloomHash(key string) bloomfilter.Hashable {
	return stringHash(key)
}

// stringHash implements bloomfilter.Hashable over a plain string using
// FNV-1a, avoiding a dependency on hash/fnv's streaming Writer interface
// for what is a single fixed-size key.
type stringHash string

func (s stringHash) Sum64() uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
