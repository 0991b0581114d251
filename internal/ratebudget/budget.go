// Package ratebudget implements the single process-wide token bucket that
// gates every upstream JSON-RPC call (spec §4.4). It is the only
// cross-task synchronization primitive pollers share besides the store.
package ratebudget

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/erigontech/txindexer/internal/metrics"
)

// Budget gates upstream calls behind a token bucket. Acquire is wait-free
// in the fast path (tokens available) and blocks otherwise; fairness
// across callers is whatever golang.org/x/time/rate provides, which the
// spec explicitly does not require to be strict FIFO.
type Budget struct {
	limiter *rate.Limiter
}

// New builds a Budget with the given capacity (burst) and refill rate in
// tokens per second.
func New(capacity int, refillPerSecond float64) *Budget {
	return &Budget{limiter: rate.NewLimiter(rate.Limit(refillPerSecond), capacity)}
}

// Acquire blocks until one token is available, consumes it, and returns.
// It returns ctx.Err() if ctx is canceled while waiting.
func (b *Budget) Acquire(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.RateBudgetWaitSeconds.Observe(time.Since(start).Seconds())
	}()
	return b.limiter.Wait(ctx)
}

// Execute acquires a token and then runs fn, returning fn's error. Every
// upstream RPC in internal/rpcclient is wrapped through this.
func (b *Budget) Execute(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	return fn()
}

// Tokens reports the instantaneous number of tokens available, useful
// only for diagnostics — callers must still go through Acquire/Execute,
// never gate on this value directly (it is stale the instant it's read).
func (b *Budget) Tokens() float64 {
	return b.limiter.Tokens()
}
