package stages

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gputfe/tfe/timeq"
)

func TestBarrier_ReleaseOnlyAfterAllArrive(t *testing.T) {
	// Scenario 6 from spec.md §8: expected_warps=2, base_latency=2;
	// arrive(warp=0) alone does not release; arrive(warp=1) schedules a
	// release at cycle >= 2, and the ready set equals {0,1}.
	b := NewBarrier(true, timeq.ServerConfig{BaseLatency: 2, BytesPerCycle: 1, QueueCapacity: 4, CompletionsPerCycle: 1})

	_, scheduled, reject := b.Arrive(0, 0, 0, 0, 2)
	require.Nil(t, reject)
	require.False(t, scheduled)

	ticket, scheduled2, reject2 := b.Arrive(0, 0, 0, 1, 2)
	require.Nil(t, reject2)
	require.True(t, scheduled2)
	require.GreaterOrEqual(t, ticket.ReadyAt, timeq.Cycle(2))

	var released []int
	b.Tick(ticket.ReadyAt, func(clusterID, barrierID int, warps []int) {
		released = append(released, warps...)
	})
	require.ElementsMatch(t, []int{0, 1}, released)
}

func TestBarrier_DistinctBarrierIDsDoNotInterfere(t *testing.T) {
	b := NewBarrier(true, timeq.ServerConfig{BaseLatency: 0, BytesPerCycle: 1, QueueCapacity: 4, CompletionsPerCycle: 4})

	_, scheduledOther, _ := b.Arrive(0, 0, 2, 6, 2)
	require.False(t, scheduledOther, "barrier 2 still waits for its second warp")

	_, scheduled, _ := b.Arrive(0, 0, 1, 5, 1)
	require.True(t, scheduled, "single-warp barrier releases on first arrival")

	var released []int
	b.Tick(0, func(_, _ int, warps []int) { released = append(released, warps...) })
	require.Equal(t, []int{5}, released)
}
