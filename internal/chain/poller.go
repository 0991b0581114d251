// Package chain implements the per-chain Poller (spec §4.1): the state
// machine that drives one chain forward from its checkpoint, applying
// reorg-safe range logic, dedup, block-timestamp caching, DLQ enqueue on
// transient write failure, and checkpoint advancement.
package chain

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/erigontech/txindexer/internal/blockcache"
	"github.com/erigontech/txindexer/internal/common"
	"github.com/erigontech/txindexer/internal/dedup"
	"github.com/erigontech/txindexer/internal/dlq"
	"github.com/erigontech/txindexer/internal/ingesterr"
	"github.com/erigontech/txindexer/internal/metrics"
	"github.com/erigontech/txindexer/internal/rpcclient"
	"github.com/erigontech/txindexer/internal/store"
)

// Params are the tunables from spec §6.4 relevant to one poller.
type Params struct {
	PollInterval       time.Duration
	ConfirmationBlocks uint64
	ReorgSafetyBlocks  uint64
	MaxBlocksPerQuery  uint64
	MaxStartupBackfill uint64
}

// Poller owns one chain's ingestion state machine. It is constructed and
// controlled only by the Orchestrator.
type Poller struct {
	chainID uint64
	name    string
	params  Params

	rpc        *rpcclient.Client
	transfers  *store.Store
	blockCache *blockcache.Cache
	dedupIdx   dedup.Index
	deadQueue  *dlq.Queue
	log        *zap.Logger

	lastProcessed uint64
	polling       atomic.Bool
	running       atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Poller. Call Start to begin ticking.
func New(
	chainID uint64,
	name string,
	params Params,
	rpc *rpcclient.Client,
	transfers *store.Store,
	blockCache *blockcache.Cache,
	dedupIdx dedup.Index,
	deadQueue *dlq.Queue,
	log *zap.Logger,
) *Poller {
	return &Poller{
		chainID:    chainID,
		name:       name,
		params:     params,
		rpc:        rpc,
		transfers:  transfers,
		blockCache: blockCache,
		dedupIdx:   dedupIdx,
		deadQueue:  deadQueue,
		log:        log.Named("poller").With(zap.Uint64("chain_id", chainID), zap.String("chain", name)),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start loads initialCheckpoint as the resumption point, applies the
// startup catch-up guard (spec §4.1), and installs the periodic tick.
func (p *Poller) Start(ctx context.Context, initialCheckpoint uint64) error {
	p.lastProcessed = initialCheckpoint

	head, err := p.rpc.HeadBlockNumber(ctx)
	if err != nil {
		// A failed initial head fetch is transient; the first tick will
		// retry. Startup itself is not fatal on an RPC hiccup.
		p.log.Warn("initial head fetch failed, will retry on first tick", zap.Error(err))
	} else if head > p.lastProcessed && head-p.lastProcessed > p.params.MaxStartupBackfill {
		jumpTo := head - p.params.ReorgSafetyBlocks
		if err := p.transfers.CheckpointSave(ctx, p.chainID, jumpTo); err != nil {
			return err
		}
		p.log.Warn("startup gap exceeds MAX_STARTUP_BACKFILL, skipping ahead",
			zap.Uint64("head", head),
			zap.Uint64("last_processed", p.lastProcessed),
			zap.Uint64("jump_to", jumpTo),
		)
		p.lastProcessed = jumpTo
	}

	p.running.Store(true)
	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop signals shutdown. The in-flight cycle, if any, finishes; no new
// cycle begins. Stop blocks until the run loop has exited.
func (p *Poller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Running reports whether the run loop is still alive — false once it has
// returned, whether from Stop, ctx cancellation, or (should it ever happen)
// an early exit. This is what Orchestrator.Health reads per chain.
func (p *Poller) Running() bool {
	return p.running.Load()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.doneCh)
	defer p.running.Store(false)

	ticker := time.NewTicker(p.params.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs exactly one poll cycle per spec §4.1. It never panics or
// returns an error to the caller: every failure is classified and either
// silently retried next tick (transient upstream) or enqueued to the DLQ
// (transient write).
func (p *Poller) tick(ctx context.Context) {
	select {
	case <-p.stopCh:
		return
	default:
	}

	if !p.transfers.Healthy(ctx) {
		metrics.PollerTicksTotal.WithLabelValues(p.chainLabel(), "skipped").Inc()
		return
	}

	if !p.polling.CompareAndSwap(false, true) {
		metrics.PollerTicksTotal.WithLabelValues(p.chainLabel(), "skipped").Inc()
		return
	}
	defer p.polling.Store(false)

	head, err := p.rpc.HeadBlockNumber(ctx)
	if err != nil {
		p.log.Debug("getBlockNumber failed, retrying next tick", zap.Error(err))
		metrics.PollerTicksTotal.WithLabelValues(p.chainLabel(), "error").Inc()
		return
	}

	fromBlock, toBlock, ok := p.computeRange(head)
	if !ok {
		metrics.PollerTicksTotal.WithLabelValues(p.chainLabel(), "skipped").Inc()
		metrics.PollerLagBlocks.WithLabelValues(p.chainLabel()).Set(float64(common.AbsoluteDifference(head, p.lastProcessed)))
		return
	}

	logs, err := p.rpc.TransferLogs(ctx, fromBlock, toBlock)
	if err != nil {
		p.log.Debug("getLogs failed, retrying next tick", zap.Error(err))
		metrics.PollerTicksTotal.WithLabelValues(p.chainLabel(), "error").Inc()
		return
	}

	anyTransientFailure := false
	for _, l := range logs {
		if !p.process(ctx, l) {
			anyTransientFailure = true
		}
	}

	if anyTransientFailure {
		// At least one log in this range hit a transient store failure and
		// landed in the DLQ (spec §8 Scenario D): do not advance the
		// checkpoint past a range that wasn't fully persisted. The same
		// range is re-polled next tick; dedup/upsert idempotency makes
		// that safe, and the DLQ retry loop races to persist the
		// DLQ-queued items independently.
		metrics.PollerTicksTotal.WithLabelValues(p.chainLabel(), "partial").Inc()
		return
	}

	if err := p.transfers.CheckpointSave(ctx, p.chainID, toBlock); err != nil {
		// Checkpoint save failure is retried once inline; if still
		// failing, last_processed is not advanced so the range is
		// re-polled next tick (idempotent via dedup).
		p.log.Warn("checkpoint save failed, retrying once", zap.Error(err))
		if err := p.transfers.CheckpointSave(ctx, p.chainID, toBlock); err != nil {
			p.log.Error("checkpoint save failed twice, will re-poll range next tick", zap.Error(err))
			metrics.PollerTicksTotal.WithLabelValues(p.chainLabel(), "error").Inc()
			return
		}
	}
	p.lastProcessed = toBlock
	metrics.PollerTicksTotal.WithLabelValues(p.chainLabel(), "ok").Inc()
	metrics.PollerLagBlocks.WithLabelValues(p.chainLabel()).Set(float64(common.AbsoluteDifference(head, p.lastProcessed)))
}

// computeRange derives [from_block, to_block] per spec §4.1 step 3.
func (p *Poller) computeRange(head uint64) (fromBlock, toBlock uint64, ok bool) {
	if head > p.params.ConfirmationBlocks {
		toBlock = head - p.params.ConfirmationBlocks
	}

	// from_block = max(last_processed - REORG_SAFETY_BLOCKS + 1, last_processed + 1)
	fromBlock = maxU64(safeSub(p.lastProcessed, p.params.ReorgSafetyBlocks)+1, p.lastProcessed+1)

	if fromBlock > toBlock {
		return 0, 0, false
	}

	if p.params.MaxBlocksPerQuery > 0 && toBlock > fromBlock+p.params.MaxBlocksPerQuery-1 {
		toBlock = fromBlock + p.params.MaxBlocksPerQuery - 1
	}
	return fromBlock, toBlock, true
}

func safeSub(x, y uint64) uint64 {
	if y > x {
		return 0
	}
	return x - y
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// process handles exactly one decoded log per spec §4.1 process(log). It
// reports false only when the log hit a transient store failure and was
// handed to the DLQ; malformed/already-known/permanently-failed logs all
// report true since none of those withhold the range from the checkpoint.
func (p *Poller) process(ctx context.Context, l gethtypes.Log) bool {
	record, err := decodeTransfer(p.chainID, l)
	if err != nil {
		p.log.Debug("skipping malformed log", zap.Error(err))
		return true
	}

	key := record.Key()
	known, err := p.dedupIdx.IsKnown(ctx, key)
	if err == nil && known {
		return true
	}

	ts, err := p.blockCache.GetOrFetch(record.BlockNumber, p.rpc.BlockTimestamp)
	if err != nil {
		// Documented compromise (spec §4.1): fall back to wall clock
		// rather than dropping the transfer.
		p.log.Warn("block timestamp fetch failed, using wall clock", zap.Error(err), zap.Uint64("block", record.BlockNumber))
		ts = time.Now().Unix()
	}
	record.BlockTimestamp = ts

	id, inserted, err := p.transfers.Upsert(ctx, record)
	if err != nil {
		if ingesterr.IsPermanent(err) {
			p.log.Error("permanent store failure, dropping log", zap.Error(err), zap.String("tx_hash", record.TxHash))
			metrics.StoreErrorsTotal.WithLabelValues(p.chainLabel(), "permanent").Inc()
			return true
		}
		p.log.Warn("transient store failure, enqueueing to dlq", zap.Error(err), zap.String("tx_hash", record.TxHash))
		metrics.StoreErrorsTotal.WithLabelValues(p.chainLabel(), "transient").Inc()
		p.deadQueue.Enqueue(p.chainID, record, err)
		return false
	}

	if inserted {
		p.dedupIdx.MarkKnown(key)
	}
	_ = id
	return true
}

func (p *Poller) chainLabel() string {
	return strconv.FormatUint(p.chainID, 10)
}

// LastProcessed reports the poller's in-memory checkpoint mirror.
func (p *Poller) LastProcessed() uint64 {
	return p.lastProcessed
}
