package mrc

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCachesSecondLookup(t *testing.T) {
	c := New()
	var calls int32

	fetch := func(ctx context.Context) (uint64, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	code1, age1, err := c.Fetch(context.Background(), 1234, fetch)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), code1)

	code2, age2, err := c.Fetch(context.Background(), 1234, fetch)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), code2)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.LessOrEqual(t, age2, age1)
}

func TestEvictsSmallestKeyWhenFull(t *testing.T) {
	c := New()
	fetch := func(ctx context.Context) (uint64, error) { return 1, nil }

	for i := uint64(1); i <= maxEntries; i++ {
		_, _, err := c.Fetch(context.Background(), i, fetch)
		require.NoError(t, err)
	}
	assert.Equal(t, maxEntries, c.Len())

	_, _, err := c.Fetch(context.Background(), uint64(maxEntries)+1, fetch)
	require.NoError(t, err)
	assert.Equal(t, maxEntries, c.Len())

	c.mu.Lock()
	_, hasSmallest := c.entries[1]
	c.mu.Unlock()
	assert.False(t, hasSmallest, "smallest key should have been evicted")
}

func TestFetchPropagatesError(t *testing.T) {
	c := New()
	boom := assert.AnError
	fetch := func(ctx context.Context) (uint64, error) { return 0, boom }

	_, _, err := c.Fetch(context.Background(), 99, fetch)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}
