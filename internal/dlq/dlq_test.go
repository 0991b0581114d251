package dlq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erigontech/txindexer/internal/store"
)

func rec(tx string) store.Record {
	return store.Record{ChainID: 1, TxHash: tx, Token: "0xtoken", FromAddr: "0xfrom", ToAddr: "0xto", Value: "0x1"}
}

func TestEnqueue_Len(t *testing.T) {
	q := New(10, 3, zap.NewNop())
	require.Equal(t, 0, q.Len())

	q.Enqueue(1, rec("0xa"), errors.New("boom"))
	require.Equal(t, 1, q.Len())
}

func TestEnqueue_EvictsOldestOnOverflow(t *testing.T) {
	q := New(2, 3, zap.NewNop())
	q.Enqueue(1, rec("0xa"), errors.New("e1"))
	q.Enqueue(1, rec("0xb"), errors.New("e2"))
	q.Enqueue(1, rec("0xc"), errors.New("e3"))
	require.Equal(t, 2, q.Len())
}

func TestFlushOnce_SuccessRemovesItem(t *testing.T) {
	q := New(10, 3, zap.NewNop())
	q.Enqueue(1, rec("0xa"), errors.New("boom"))

	q.FlushOnce(context.Background(), func(ctx context.Context, r store.Record) error {
		return nil
	})
	require.Equal(t, 0, q.Len())
}

func TestFlushOnce_RetainsOnFailureUntilMaxRetries(t *testing.T) {
	q := New(10, 2, zap.NewNop())
	q.Enqueue(1, rec("0xa"), errors.New("boom"))

	failing := func(ctx context.Context, r store.Record) error { return errors.New("still down") }

	q.FlushOnce(context.Background(), failing)
	require.Equal(t, 1, q.Len(), "first failed retry must be kept")

	q.FlushOnce(context.Background(), failing)
	require.Equal(t, 0, q.Len(), "item must be dropped once max_retries is reached")
}
