package chain

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erigontech/txindexer/internal/blockcache"
	"github.com/erigontech/txindexer/internal/dedup"
	"github.com/erigontech/txindexer/internal/dlq"
	"github.com/erigontech/txindexer/internal/store"
)

func testParams() Params {
	return Params{
		ConfirmationBlocks: 3,
		ReorgSafetyBlocks:  10,
		MaxBlocksPerQuery:  100,
		MaxStartupBackfill: 500,
	}
}

func TestComputeRange_BasicAdvance(t *testing.T) {
	p := &Poller{params: testParams(), lastProcessed: 999}
	from, to, ok := p.computeRange(1100)
	require.True(t, ok)
	require.Equal(t, uint64(1000), from)
	require.Equal(t, uint64(1097), to) // head - CONFIRMATION_BLOCKS
}

func TestComputeRange_NothingNewYet(t *testing.T) {
	p := &Poller{params: testParams(), lastProcessed: 1100}
	_, _, ok := p.computeRange(1101) // to_block = 1098 < from_block 1101
	require.False(t, ok)
}

func TestComputeRange_CappedByMaxBlocksPerQuery(t *testing.T) {
	params := testParams()
	params.MaxBlocksPerQuery = 10
	p := &Poller{params: params, lastProcessed: 999}

	from, to, ok := p.computeRange(2000)
	require.True(t, ok)
	require.Equal(t, uint64(1000), from)
	require.Equal(t, uint64(1009), to)
}

func TestComputeRange_HeadBelowConfirmations(t *testing.T) {
	p := &Poller{params: testParams(), lastProcessed: 0}
	_, _, ok := p.computeRange(1) // head(1) <= ConfirmationBlocks(3) -> to_block stays 0
	require.False(t, ok)
}

func newTestPoller(t *testing.T) (*Poller, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	bc, err := blockcache.New("1", 10)
	require.NoError(t, err)

	dedupIdx := dedup.NewStoreBacked(s, 1)
	deadQueue := dlq.New(10, 3, zap.NewNop())

	p := New(1, "test-chain", testParams(), nil, s, bc, dedupIdx, deadQueue, zap.NewNop())
	return p, s
}

func sampleLog(logIndex uint, blockNumber uint64) types.Log {
	var fromTopic, toTopic common.Hash
	copy(fromTopic[12:], common.HexToAddress("0x1111111111111111111111111111111111111111").Bytes())
	copy(toTopic[12:], common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes())
	return types.Log{
		Address:     common.HexToAddress("0xtoken000000000000000000000000000000000"),
		Topics:      []common.Hash{common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"), fromTopic, toTopic},
		Data:        []byte{0x01},
		TxHash:      common.HexToHash("0xdead"),
		Index:       logIndex,
		BlockNumber: blockNumber,
	}
}

func TestProcess_PersistsDecodedLog(t *testing.T) {
	p, s := newTestPoller(t)
	ctx := context.Background()

	// Pre-warm the block cache so process() never calls through p.rpc.
	_, err := p.blockCache.GetOrFetch(50, func(uint64) (int64, error) { return 1_700_000_000, nil })
	require.NoError(t, err)

	p.process(ctx, sampleLog(0, 50))

	rows, err := s.ByFrom(ctx, 1, "0x1111111111111111111111111111111111111111", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1_700_000_000), rows[0].BlockTimestamp)
}

func TestProcess_SkipsKnownLog(t *testing.T) {
	p, s := newTestPoller(t)
	ctx := context.Background()

	_, err := p.blockCache.GetOrFetch(50, func(uint64) (int64, error) { return 1, nil })
	require.NoError(t, err)

	p.process(ctx, sampleLog(0, 50))
	p.process(ctx, sampleLog(0, 50))

	rows, err := s.ByFrom(ctx, 1, "0x1111111111111111111111111111111111111111", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "replaying the same log must not duplicate the row")
}

func TestProcess_SkipsMalformedLog(t *testing.T) {
	p, s := newTestPoller(t)
	ctx := context.Background()

	malformed := types.Log{Topics: []common.Hash{{}}, TxHash: common.HexToHash("0xbad"), BlockNumber: 1}
	p.process(ctx, malformed)

	rows, err := s.ByFrom(ctx, 1, "0x1111111111111111111111111111111111111111", 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestProcess_UsesCachedBlockTimestamp(t *testing.T) {
	p, s := newTestPoller(t)
	ctx := context.Background()

	_, err := p.blockCache.GetOrFetch(77, func(uint64) (int64, error) { return 42, nil })
	require.NoError(t, err)

	p.process(ctx, sampleLog(0, 77))
	rows, err := s.ByFrom(ctx, 1, "0x1111111111111111111111111111111111111111", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(42), rows[0].BlockTimestamp)
}

func TestProcess_TransientStoreFailureEnqueuesDLQ(t *testing.T) {
	p, _ := newTestPoller(t)
	ctx := context.Background()

	p.transfers.Close() // every subsequent store call now fails transiently

	_, err := p.blockCache.GetOrFetch(90, func(uint64) (int64, error) { return 1, nil })
	require.NoError(t, err)

	p.process(ctx, sampleLog(0, 90))
	require.Equal(t, 1, p.deadQueue.Len(), "a closed store is a transient failure, not permanent, so the log is enqueued for retry")
}

func TestProcess_TransientFailureReturnsFalse(t *testing.T) {
	p, _ := newTestPoller(t)
	ctx := context.Background()
	p.transfers.Close()

	_, err := p.blockCache.GetOrFetch(91, func(uint64) (int64, error) { return 1, nil })
	require.NoError(t, err)

	ok := p.process(ctx, sampleLog(0, 91))
	require.False(t, ok, "a transient store failure must be reported so the tick withholds the checkpoint (spec §8 Scenario D)")
}

func TestProcess_SuccessfulPersistReturnsTrue(t *testing.T) {
	p, _ := newTestPoller(t)
	ctx := context.Background()

	_, err := p.blockCache.GetOrFetch(92, func(uint64) (int64, error) { return 1, nil })
	require.NoError(t, err)

	ok := p.process(ctx, sampleLog(0, 92))
	require.True(t, ok)
}

func TestRunning_ReflectsRunLoopLifetime(t *testing.T) {
	p, _ := newTestPoller(t)
	p.params.PollInterval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.False(t, p.Running(), "a poller that never started must report not running")

	p.running.Store(true)
	p.wg.Add(1)
	go p.run(ctx)
	require.True(t, p.Running())

	p.Stop()
	require.False(t, p.Running(), "Running must go false once the run loop has returned, as Orchestrator.Health relies on")
}
