package blockcache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetOrFetch_CachesOnHit(t *testing.T) {
	c, err := New("1", 10)
	require.NoError(t, err)

	calls := 0
	fetch := func(blockNumber uint64) (int64, error) {
		calls++
		return int64(blockNumber) * 2, nil
	}

	ts, err := c.GetOrFetch(100, fetch)
	require.NoError(t, err)
	require.Equal(t, int64(200), ts)
	require.Equal(t, 1, calls)

	ts, err = c.GetOrFetch(100, fetch)
	require.NoError(t, err)
	require.Equal(t, int64(200), ts)
	require.Equal(t, 1, calls, "second call must hit the cache, not fetch again")
}

func TestGetOrFetch_PropagatesFetchError(t *testing.T) {
	c, err := New("1", 10)
	require.NoError(t, err)

	wantErr := errors.New("rpc down")
	_, err = c.GetOrFetch(1, func(uint64) (int64, error) { return 0, wantErr })
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 0, c.Len(), "a failed fetch must not populate the cache")
}

func TestNew_BoundedSize(t *testing.T) {
	c, err := New("1", 2)
	require.NoError(t, err)

	fetch := func(blockNumber uint64) (int64, error) { return int64(blockNumber), nil }
	for i := uint64(1); i <= 5; i++ {
		_, err := c.GetOrFetch(i, fetch)
		require.NoError(t, err)
	}
	require.LessOrEqual(t, c.Len(), 2)
}

func TestNew_DefaultSize(t *testing.T) {
	c, err := New("1", 0)
	require.NoError(t, err)
	require.NotNil(t, c)
}
