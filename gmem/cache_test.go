package gmem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheTagArray_FillThenProbeHits(t *testing.T) {
	c := NewCacheTagArray(4, 2)
	require.False(t, c.Probe(10))
	c.Fill(10)
	require.True(t, c.Probe(10))
}

func TestCacheTagArray_InvalidateAllClearsEverySet(t *testing.T) {
	c := NewCacheTagArray(4, 2)
	c.Fill(1)
	c.Fill(2)
	c.Fill(3)
	c.InvalidateAll()
	require.False(t, c.Probe(1))
	require.False(t, c.Probe(2))
	require.False(t, c.Probe(3))
}

func TestCacheTagArray_SingleSetSingleWayEvictsLRU(t *testing.T) {
	// Boundary behavior from spec.md §8: (sets=1, ways=1), second fill
	// evicts the first.
	c := NewCacheTagArray(1, 1)
	c.Fill(1)
	evicted, did := c.Fill(2)
	require.True(t, did)
	require.Equal(t, uint64(1), evicted)
	require.False(t, c.Probe(1))
	require.True(t, c.Probe(2))
}

func TestCacheTagArray_TouchPromotesToMRUSoItSurvivesEviction(t *testing.T) {
	c := NewCacheTagArray(1, 2)
	c.Fill(1)
	c.Fill(2)
	c.Touch(1) // 1 is now MRU, 2 is LRU
	evicted, did := c.Fill(3)
	require.True(t, did)
	require.Equal(t, uint64(2), evicted)
	require.True(t, c.Probe(1))
	require.True(t, c.Probe(3))
}

func TestCacheTagArray_FillExistingLineIsNoopNotEviction(t *testing.T) {
	c := NewCacheTagArray(1, 1)
	c.Fill(1)
	_, did := c.Fill(1)
	require.False(t, did)
	require.True(t, c.Probe(1))
}

func TestCacheTagArray_InvalidateSingleLine(t *testing.T) {
	c := NewCacheTagArray(2, 2)
	c.Fill(5)
	c.Invalidate(5)
	require.False(t, c.Probe(5))
}
