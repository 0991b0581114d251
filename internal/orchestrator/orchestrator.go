// Package orchestrator wires the boot sequence and shutdown handler
// (spec §4.8): opens the store, builds one Poller per catalog chain, and
// owns the process-wide rate budget and DLQ retry loop.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erigontech/txindexer/internal/blockcache"
	"github.com/erigontech/txindexer/internal/catalog"
	"github.com/erigontech/txindexer/internal/chain"
	"github.com/erigontech/txindexer/internal/config"
	"github.com/erigontech/txindexer/internal/dedup"
	"github.com/erigontech/txindexer/internal/dlq"
	"github.com/erigontech/txindexer/internal/ratebudget"
	"github.com/erigontech/txindexer/internal/rpcclient"
	"github.com/erigontech/txindexer/internal/store"
)

// chainUnit bundles one chain's poller with the RPC connection it owns,
// so shutdown can close both in order.
type chainUnit struct {
	chain *catalog.Chain
	rpc   *rpcclient.Client
	poll  *chain.Poller
}

// Orchestrator owns the full set of running chains plus the shared
// collaborators (store, rate budget, DLQ) and drives startup/shutdown.
type Orchestrator struct {
	cfg   config.Config
	log   *zap.Logger
	store *store.Store
	budget *ratebudget.Budget
	dead  *dlq.Queue

	units []*chainUnit

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Boot opens the store, validates the catalog, dials every chain's RPC
// endpoint, and starts one Poller per chain from its saved checkpoint (or
// block 0 if this chain has never checkpointed). Any failure here is
// startup-fatal per spec §7.
func Boot(ctx context.Context, cfg config.Config, chains []catalog.Chain, log *zap.Logger) (*Orchestrator, error) {
	chains, err := catalog.Load(chains)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	s, err := store.Open(cfg.StoreURL, log)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open store: %w", err)
	}

	budget := ratebudget.New(cfg.RateCapacity, cfg.RateRefillPerSec)
	dead := dlq.New(cfg.DLQCapacity, cfg.DLQMaxRetries, log)

	runCtx, cancel := context.WithCancel(ctx)

	o := &Orchestrator{
		cfg:    cfg,
		log:    log.Named("orchestrator"),
		store:  s,
		budget: budget,
		dead:   dead,
		cancel: cancel,
	}

	params := chain.Params{
		PollInterval:       cfg.PollInterval,
		ConfirmationBlocks: cfg.ConfirmationBlocks,
		ReorgSafetyBlocks:  cfg.ReorgSafetyBlocks,
		MaxBlocksPerQuery:  cfg.MaxBlocksPerQuery,
		MaxStartupBackfill: cfg.MaxStartupBackfill,
	}

	for i := range chains {
		c := chains[i]

		rpc, err := rpcclient.Dial(c.ChainID, c.RPCEndpoint, budget)
		if err != nil {
			o.shutdownPartial()
			return nil, fmt.Errorf("orchestrator: dial chain %d: %w", c.ChainID, err)
		}

		bc, err := blockcache.New(fmt.Sprint(c.ChainID), cfg.BlockCacheSize)
		if err != nil {
			rpc.Close()
			o.shutdownPartial()
			return nil, fmt.Errorf("orchestrator: block cache for chain %d: %w", c.ChainID, err)
		}

		dedupIdx := dedup.NewStoreBacked(s, c.ChainID)
		poller := chain.New(c.ChainID, c.Name, params, rpc, s, bc, dedupIdx, dead, log)

		checkpoint, _, err := s.CheckpointGet(runCtx, c.ChainID)
		if err != nil {
			rpc.Close()
			o.shutdownPartial()
			return nil, fmt.Errorf("orchestrator: load checkpoint for chain %d: %w", c.ChainID, err)
		}

		if err := poller.Start(runCtx, checkpoint); err != nil {
			rpc.Close()
			o.shutdownPartial()
			return nil, fmt.Errorf("orchestrator: start poller for chain %d: %w", c.ChainID, err)
		}

		o.units = append(o.units, &chainUnit{chain: &chains[i], rpc: rpc, poll: poller})
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		dead.RetryLoop(runCtx, cfg.DLQRetryInterval, o.retryOne)
	}()

	o.log.Info("orchestrator boot complete", zap.Int("chains", len(o.units)))
	return o, nil
}

// shutdownPartial closes whatever units were started before a boot
// failure, so a failed Boot never leaks connections.
func (o *Orchestrator) shutdownPartial() {
	for _, u := range o.units {
		u.poll.Stop()
		u.rpc.Close()
	}
	o.units = nil
	if o.store != nil {
		o.store.Close()
	}
}

func (o *Orchestrator) retryOne(ctx context.Context, r store.Record) error {
	_, _, err := o.store.Upsert(ctx, r)
	return err
}

// Health reports, per chain id, whether that chain's poller run loop is
// still alive (spec §4.8 supplemental health accessor — used by an
// external liveness adapter, not by the ingestion path itself). A poller
// whose run loop has exited — stopped, or dead from an early return — is
// reported unhealthy rather than unconditionally true.
func (o *Orchestrator) Health() map[uint64]bool {
	out := make(map[uint64]bool, len(o.units))
	for _, u := range o.units {
		out[u.chain.ChainID] = u.poll.Running()
	}
	return out
}

// Store exposes the shared Store handle for the read-side Query Facade.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}

// Shutdown stops every poller, drains the DLQ once, and closes the store.
// It blocks at most one poll interval waiting for in-flight ticks to
// finish (spec §4.8 step 5).
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.log.Info("shutdown initiated")
	o.cancel()

	drain := make(chan struct{})
	go func() {
		for _, u := range o.units {
			u.poll.Stop()
			u.rpc.Close()
		}
		close(drain)
	}()

	select {
	case <-drain:
	case <-time.After(o.cfg.PollInterval):
		o.log.Warn("poller drain exceeded one poll interval, proceeding with shutdown anyway")
	}

	o.wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	o.dead.FlushOnce(flushCtx, o.retryOne)

	if err := o.store.Close(); err != nil {
		o.log.Error("error closing store", zap.Error(err))
	}
	o.log.Info("shutdown complete")
}
