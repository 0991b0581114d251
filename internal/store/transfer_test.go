package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord() Record {
	return Record{
		ChainID:        1,
		TxHash:         "0xAAA1111111111111111111111111111111111111111111111111111111111",
		LogIndex:       0,
		Token:          "0xToken00000000000000000000000000000000",
		FromAddr:       "0xFROM000000000000000000000000000000000",
		ToAddr:         "0xTO00000000000000000000000000000000000",
		Value:          "0x64",
		BlockNumber:    100,
		BlockTimestamp: 1_700_000_000,
	}
}

func TestUpsert_IdempotentReplay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := sampleRecord()
	id1, inserted1, err := s.Upsert(ctx, r)
	require.NoError(t, err)
	require.True(t, inserted1)

	id2, inserted2, err := s.Upsert(ctx, r)
	require.NoError(t, err)
	require.False(t, inserted2)
	require.Equal(t, id1, id2)

	rows, err := s.ByFrom(ctx, r.ChainID, r.FromAddr, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestUpsert_NormalizesCase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := sampleRecord()
	_, _, err := s.Upsert(ctx, r)
	require.NoError(t, err)

	rows, err := s.ByFrom(ctx, r.ChainID, "0xFrOm000000000000000000000000000000000", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "0xfrom000000000000000000000000000000000", rows[0].FromAddr, "stored lowercase")
}

func TestUpsert_DistinctLogIndexSameTx(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := sampleRecord()
	_, _, err := s.Upsert(ctx, r)
	require.NoError(t, err)

	r2 := r
	r2.LogIndex = 1
	id, inserted, err := s.Upsert(ctx, r2)
	require.NoError(t, err)
	require.True(t, inserted)
	require.NotZero(t, id)
}

func TestStream_CursorPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := sampleRecord()
	for i := uint32(0); i < 5; i++ {
		r := base
		r.LogIndex = i
		r.TxHash = base.TxHash
		_, _, err := s.Upsert(ctx, r)
		require.NoError(t, err)
	}

	page1, err := s.Stream(ctx, base.ChainID, base.FromAddr, DirectionFrom, 0, 2)
	require.NoError(t, err)
	require.Len(t, page1.Transfers, 2)
	require.True(t, page1.HasMore)

	page2, err := s.Stream(ctx, base.ChainID, base.FromAddr, DirectionFrom, page1.NextSinceID, 2)
	require.NoError(t, err)
	require.Len(t, page2.Transfers, 2)
	require.True(t, page2.HasMore)

	page3, err := s.Stream(ctx, base.ChainID, base.FromAddr, DirectionFrom, page2.NextSinceID, 2)
	require.NoError(t, err)
	require.Len(t, page3.Transfers, 1)
	require.False(t, page3.HasMore)
}

func TestByAddress_UnionDedup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := sampleRecord()
	_, _, err := s.Upsert(ctx, r)
	require.NoError(t, err)

	// A second transfer where FromAddr is now addr's counterpart: addr
	// appears as the receiver instead.
	r2 := r
	r2.LogIndex = 1
	r2.FromAddr = r.ToAddr
	r2.ToAddr = r.FromAddr
	_, _, err = s.Upsert(ctx, r2)
	require.NoError(t, err)

	rows, err := s.ByAddress(ctx, r.ChainID, r.FromAddr, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestBatch_Sharding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := sampleRecord()
	a.FromAddr = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	_, _, err := s.Upsert(ctx, a)
	require.NoError(t, err)

	b := sampleRecord()
	b.LogIndex = 1
	b.TxHash = "0xbbb1111111111111111111111111111111111111111111111111111111111"
	b.FromAddr = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	_, _, err = s.Upsert(ctx, b)
	require.NoError(t, err)

	results, err := s.Batch(ctx, 1, []BatchQuery{
		{Addr: a.FromAddr, SinceID: 0},
		{Addr: b.FromAddr, SinceID: 0},
		{Addr: "0xcccccccccccccccccccccccccccccccccccccccc", SinceID: 500},
	}, DirectionFrom, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Len(t, results[a.FromAddr].Transfers, 1)
	require.Len(t, results[b.FromAddr].Transfers, 1)
	require.Empty(t, results["0xcccccccccccccccccccccccccccccccccccccccc"].Transfers)
}

func TestBatch_TooLarge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	queries := make([]BatchQuery, 501)
	for i := range queries {
		queries[i] = BatchQuery{Addr: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}
	}
	_, err := s.Batch(ctx, 1, queries, DirectionBoth, 10)
	require.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestCheckpoint_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.CheckpointGet(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.CheckpointSave(ctx, 1, 1000))
	block, ok, err := s.CheckpointGet(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1000), block)

	require.NoError(t, s.CheckpointSave(ctx, 1, 1050))
	block, ok, err = s.CheckpointGet(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1050), block)
}

func TestExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := sampleRecord()
	known, err := s.Exists(ctx, r.Key())
	require.NoError(t, err)
	require.False(t, known)

	_, _, err = s.Upsert(ctx, r)
	require.NoError(t, err)

	known, err = s.Exists(ctx, r.Key())
	require.NoError(t, err)
	require.True(t, known)
}
