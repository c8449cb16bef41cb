package stages

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gputfe/tfe/timeq"
)

func TestIcache_HitRate1UsesHitStation(t *testing.T) {
	// Scenario 5 from spec.md §8: hit_rate=1.0, hit.base_latency=0, issue
	// at cycle 10 -> ready_at=10.
	ic := NewIcache(true, 1.0, 0,
		timeq.ServerConfig{BaseLatency: 0, BytesPerCycle: 1, QueueCapacity: 4, CompletionsPerCycle: 1},
		timeq.ServerConfig{BaseLatency: 7, BytesPerCycle: 1, QueueCapacity: 4, CompletionsPerCycle: 1})

	ticket, reject, hit := ic.TryFetch(10, &IcacheRequest{WarpID: 0, PC: 100}, 0)
	require.Nil(t, reject)
	require.True(t, hit)
	require.Equal(t, timeq.Cycle(10), ticket.ReadyAt)
}

func TestIcache_HitRate0UsesMissStation(t *testing.T) {
	// Scenario 5 from spec.md §8: hit_rate=0.0, miss.base_latency=7, issue
	// at cycle 5 -> ready_at=12.
	ic := NewIcache(true, 0.0, 0,
		timeq.ServerConfig{BaseLatency: 0, BytesPerCycle: 1, QueueCapacity: 4, CompletionsPerCycle: 1},
		timeq.ServerConfig{BaseLatency: 7, BytesPerCycle: 1, QueueCapacity: 4, CompletionsPerCycle: 1})

	ticket, reject, hit := ic.TryFetch(5, &IcacheRequest{WarpID: 0, PC: 100}, 0)
	require.Nil(t, reject)
	require.False(t, hit)
	require.Equal(t, timeq.Cycle(12), ticket.ReadyAt)
}

func TestIcache_DisabledBypassesBothStations(t *testing.T) {
	ic := NewIcache(false, 0.5, 0,
		timeq.ServerConfig{BaseLatency: 5, BytesPerCycle: 1, QueueCapacity: 4, CompletionsPerCycle: 1},
		timeq.ServerConfig{BaseLatency: 50, BytesPerCycle: 1, QueueCapacity: 4, CompletionsPerCycle: 1})

	ticket, reject, _ := ic.TryFetch(3, &IcacheRequest{WarpID: 0, PC: 100}, 0)
	require.Nil(t, reject)
	require.Equal(t, timeq.Cycle(3), ticket.ReadyAt)
}
