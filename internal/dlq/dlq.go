// Package dlq implements the Dead Letter Queue (spec §4.7): a bounded,
// in-memory retry queue for transfers whose persistence failed
// transiently. It is not durable — a crash loses whatever is in flight,
// recovered instead by re-polling: the poller does not advance the
// checkpoint past a range that had a DLQ-bound log, so after a restart
// that range is polled again.
package dlq

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erigontech/txindexer/internal/metrics"
	"github.com/erigontech/txindexer/internal/store"
)

// Item is one failed persistence attempt awaiting retry.
type Item struct {
	ChainID     uint64
	Record      store.Record
	FirstError  error
	FirstSeenAt time.Time
	RetryCount  int
}

// Queue is a bounded FIFO of Items. On overflow the oldest item is
// evicted to make room, per spec §4.7.
type Queue struct {
	mu       sync.Mutex
	items    []*Item
	capacity int
	maxRetries int
	log      *zap.Logger
}

// New builds a Queue with the given capacity and maximum retry count
// before an item is dropped.
func New(capacity, maxRetries int, log *zap.Logger) *Queue {
	if capacity <= 0 {
		capacity = 10_000
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Queue{capacity: capacity, maxRetries: maxRetries, log: log.Named("dlq")}
}

// Enqueue adds a failed record to the queue, evicting the oldest item if
// at capacity.
func (q *Queue) Enqueue(chainID uint64, r store.Record, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		dropped := q.items[0]
		q.items = q.items[1:]
		metrics.DLQDroppedTotal.WithLabelValues("overflow").Inc()
		q.log.Warn("dlq overflow, dropping oldest item",
			zap.Uint64("chain_id", dropped.ChainID),
			zap.String("tx_hash", dropped.Record.TxHash),
		)
	}

	q.items = append(q.items, &Item{
		ChainID:     chainID,
		Record:      r,
		FirstError:  cause,
		FirstSeenAt: time.Now(),
	})
	metrics.DLQDepth.Set(float64(len(q.items)))
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Retrier persists a single record; *store.Store.Upsert satisfies this
// once its signature is narrowed to (ctx, Record) error by the caller.
type Retrier func(ctx context.Context, r store.Record) error

// FlushOnce drains a snapshot of the queue and retries each item exactly
// once via retry. Items that succeed are removed; items that fail have
// their retry_count incremented and are kept unless retry_count reaches
// max_retries, in which case they are dropped and logged. Used both by
// the periodic DLQ_RETRY_INTERVAL timer and once, synchronously, during
// shutdown (spec §4.8 step 5).
func (q *Queue) FlushOnce(ctx context.Context, retry Retrier) {
	q.mu.Lock()
	snapshot := q.items
	q.items = nil
	q.mu.Unlock()

	var kept []*Item
	for _, item := range snapshot {
		if err := retry(ctx, item.Record); err != nil {
			item.RetryCount++
			if item.RetryCount >= q.maxRetries {
				metrics.DLQDroppedTotal.WithLabelValues("retries_exhausted").Inc()
				q.log.Error("dropping dlq item after exhausting retries",
					zap.Uint64("chain_id", item.ChainID),
					zap.String("tx_hash", item.Record.TxHash),
					zap.Int("retry_count", item.RetryCount),
					zap.Error(err),
				)
				continue
			}
			kept = append(kept, item)
			continue
		}
	}

	q.mu.Lock()
	q.items = append(kept, q.items...)
	metrics.DLQDepth.Set(float64(len(q.items)))
	q.mu.Unlock()
}

// RetryLoop runs FlushOnce on interval until ctx is canceled. Intended to
// be started once by the Orchestrator at boot.
func (q *Queue) RetryLoop(ctx context.Context, interval time.Duration, retry Retrier) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.FlushOnce(ctx, retry)
		}
	}
}
