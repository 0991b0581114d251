// Package config loads the indexer's tunables from the environment, per
// the defaults enumerated in the specification's configuration section.
package config

import (
	"os"
	"time"

	"github.com/erigontech/txindexer/internal/common"
)

// Config holds every environment-tunable knob the ingestion pipeline reads
// at boot. None of it is reloaded at runtime.
type Config struct {
	RPCKey  string
	StoreURL string

	PollInterval      time.Duration
	ConfirmationBlocks uint64
	ReorgSafetyBlocks  uint64
	MaxBlocksPerQuery  uint64
	MaxStartupBackfill uint64

	RateCapacity      int
	RateRefillPerSec  float64

	BlockCacheSize int

	DLQCapacity     int
	DLQMaxRetries   int
	DLQRetryInterval time.Duration
}

// Default returns the configuration with every default from the spec's
// configuration section applied.
func Default() Config {
	return Config{
		StoreURL:           "txindexer.sqlite",
		PollInterval:       2000 * time.Millisecond,
		ConfirmationBlocks: 3,
		ReorgSafetyBlocks:  10,
		MaxBlocksPerQuery:  100,
		MaxStartupBackfill: 500,
		RateCapacity:       200,
		RateRefillPerSec:   30,
		BlockCacheSize:     100,
		DLQCapacity:        10000,
		DLQMaxRetries:      3,
		DLQRetryInterval:   30 * time.Second,
	}
}

// FromEnv overlays environment variables onto the defaults. Unset or
// unparsable variables silently keep the default — this is a boot-time
// convenience, not a validation step; callers that need hard validation
// should inspect the returned Config.
func FromEnv() Config {
	c := Default()

	if v, ok := os.LookupEnv("RPC_KEY"); ok {
		c.RPCKey = v
	}
	if v, ok := os.LookupEnv("STORE_URL"); ok {
		c.StoreURL = v
	}
	if v, ok := lookupUint64("POLL_INTERVAL_MS"); ok {
		c.PollInterval = time.Duration(v) * time.Millisecond
	}
	if v, ok := lookupUint64("CONFIRMATION_BLOCKS"); ok {
		c.ConfirmationBlocks = v
	}
	if v, ok := lookupUint64("REORG_SAFETY_BLOCKS"); ok {
		c.ReorgSafetyBlocks = v
	}
	if v, ok := lookupUint64("MAX_BLOCKS_PER_QUERY"); ok {
		c.MaxBlocksPerQuery = v
	}
	if v, ok := lookupUint64("MAX_STARTUP_BACKFILL"); ok {
		c.MaxStartupBackfill = v
	}
	if v, ok := lookupUint64("RATE_CAPACITY"); ok {
		c.RateCapacity = int(v)
	}
	if v, ok := lookupUint64("RATE_REFILL_PER_SEC"); ok {
		c.RateRefillPerSec = float64(v)
	}
	if v, ok := lookupUint64("BLOCK_CACHE_SIZE"); ok {
		c.BlockCacheSize = int(v)
	}
	if v, ok := lookupUint64("DLQ_CAPACITY"); ok {
		c.DLQCapacity = int(v)
	}
	if v, ok := lookupUint64("DLQ_MAX_RETRIES"); ok {
		c.DLQMaxRetries = int(v)
	}
	if v, ok := lookupUint64("DLQ_RETRY_INTERVAL_MS"); ok {
		c.DLQRetryInterval = time.Duration(v) * time.Millisecond
	}

	return c
}

func lookupUint64(name string) (uint64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	return common.ParseUint64(raw)
}
