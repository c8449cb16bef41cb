package stages

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gputfe/tfe/timeq"
)

func TestFence_OrderingIsFIFOAcrossWarps(t *testing.T) {
	// Scenario 3 from spec.md §8.
	f := NewFence(true, timeq.ServerConfig{BaseLatency: 0, BytesPerCycle: 1, QueueCapacity: 4, CompletionsPerCycle: 1})

	_, r1 := f.TryIssue(0, &FenceRequest{RequestID: 1, WarpID: 0})
	require.Nil(t, r1)
	_, r2 := f.TryIssue(0, &FenceRequest{RequestID: 2, WarpID: 1})
	require.Nil(t, r2)

	var popped *FenceRequest
	f.Tick(0, func(req *FenceRequest) { popped = req })
	require.NotNil(t, popped)
	require.Equal(t, uint64(1), popped.RequestID)

	popped = nil
	f.Tick(1, func(req *FenceRequest) { popped = req })
	require.NotNil(t, popped)
	require.Equal(t, uint64(2), popped.RequestID)
}
