package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erigontech/txindexer/internal/store"
)

func key(i uint32) store.NaturalKey {
	return store.NaturalKey{ChainID: 1, TxHash: "0xabc", LogIndex: i}
}

func TestStoreBacked_IsKnown(t *testing.T) {
	s, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	idx := NewStoreBacked(s, 1)
	ctx := context.Background()

	known, err := idx.IsKnown(ctx, key(0))
	require.NoError(t, err)
	require.False(t, known)

	_, _, err = s.Upsert(ctx, store.Record{
		ChainID: 1, TxHash: "0xabc", LogIndex: 0,
		Token: "0xtoken", FromAddr: "0xfrom", ToAddr: "0xto",
		Value: "0x1", BlockNumber: 1, BlockTimestamp: 1,
	})
	require.NoError(t, err)

	known, err = idx.IsKnown(ctx, key(0))
	require.NoError(t, err)
	require.True(t, known)

	// MarkKnown is a no-op for StoreBacked; calling it must not panic or
	// change behavior.
	idx.MarkKnown(key(0))
}

func TestBloomLRU_MarkAndIsKnown(t *testing.T) {
	idx := NewBloomLRU(100, time.Hour)
	ctx := context.Background()

	known, err := idx.IsKnown(ctx, key(1))
	require.NoError(t, err)
	require.False(t, known)

	idx.MarkKnown(key(1))

	known, err = idx.IsKnown(ctx, key(1))
	require.NoError(t, err)
	require.True(t, known)

	// A different key is still unknown.
	known, err = idx.IsKnown(ctx, key(2))
	require.NoError(t, err)
	require.False(t, known)
}

func TestBloomLRU_TTLExpiry(t *testing.T) {
	idx := NewBloomLRU(100, 10*time.Millisecond)
	ctx := context.Background()

	idx.MarkKnown(key(1))
	known, err := idx.IsKnown(ctx, key(1))
	require.NoError(t, err)
	require.True(t, known)

	time.Sleep(20 * time.Millisecond)

	known, err = idx.IsKnown(ctx, key(1))
	require.NoError(t, err)
	require.False(t, known, "entry must expire once its ttl has elapsed")
}

func TestNewBloomLRU_DefaultsOnNonPositiveSize(t *testing.T) {
	idx := NewBloomLRU(0, time.Minute)
	require.NotNil(t, idx)
}
