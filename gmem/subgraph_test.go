package gmem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gputfe/tfe/timeq"
)

// fakeCluster is a minimal in-memory ClusterPort stand-in: every admission
// succeeds immediately and completes on the next CollectCompletions call, avoiding a
// clustermem import (which itself depends on gmem) from this test.
type fakeCluster struct {
	pending map[int][]*Request
}

func newFakeCluster() *fakeCluster { return &fakeCluster{pending: make(map[int][]*Request)} }

func (f *fakeCluster) TryAdmitL1(now timeq.Cycle, coreID int, req *Request) (timeq.Ticket, *Reject) {
	f.pending[coreID] = append(f.pending[coreID], req)
	return timeq.NewTicket(now, now, req.Bytes), nil
}

func (f *fakeCluster) CollectCompletions(coreID int, now timeq.Cycle) []*Request {
	out := f.pending[coreID]
	f.pending[coreID] = nil
	return out
}

func baseServerConfig() timeq.ServerConfig {
	return timeq.ServerConfig{BaseLatency: 1, BytesPerCycle: 64, QueueCapacity: 32, CompletionsPerCycle: 4}
}

func TestSubgraph_L0MissGoesToCluster(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.L0HitRate = 0 // force every probe to miss
	cluster := newFakeCluster()
	sg := NewSubgraph(cfg, 0, 0, cluster, baseServerConfig(), baseServerConfig())

	req := &Request{ID: 1, Addr: 0, Bytes: 4, ActiveLanes: 1, Kind: Load}
	childCount, rejected := sg.Issue(0, req)
	require.Equal(t, 1, childCount)
	require.Empty(t, rejected)
	require.Len(t, cluster.pending[0], 1)
}

func TestSubgraph_MSHRCoalescesSecondMissToSameLine(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.L0HitRate = 0
	cluster := newFakeCluster()
	sg := NewSubgraph(cfg, 0, 0, cluster, baseServerConfig(), baseServerConfig())

	// Two different warp requests whose addresses fall in the same line
	// (0 and 1, both line 0 at 64B lines).
	req := &Request{ID: 1, Addr: 0, Bytes: 4, ActiveLanes: 1, Kind: Load}
	sg.Issue(0, req)
	req2 := &Request{ID: 2, Addr: 1, Bytes: 4, ActiveLanes: 1, Kind: Load}
	sg.Issue(0, req2)

	// Only the first miss should have reached the cluster; the second
	// coalesced onto the outstanding MSHR entry.
	require.Len(t, cluster.pending[0], 1)
	require.Equal(t, uint64(1), sg.Stats().MshrMerges)
}

func TestSubgraph_L0HitCompletesLocallyWithoutClusterTraffic(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.L0HitRate = 1
	cluster := newFakeCluster()
	sg := NewSubgraph(cfg, 0, 0, cluster, baseServerConfig(), baseServerConfig())

	req := &Request{ID: 1, Addr: 0, Bytes: 4, ActiveLanes: 1, Kind: Load}
	// Prime the tag array so the probe finds a resident line (a true hit
	// requires both an L0-resident line and the stochastic hit decision).
	sg.l0.Fill(LineAddr(0, cfg.L0LineBytes))

	sg.Issue(0, req)
	require.Empty(t, cluster.pending[0])

	done := sg.Tick(0)
	require.Len(t, done, 1)
	require.True(t, done[0].L0Hit)
}

func TestSubgraph_MSHRCapacityRejectsSecondDistinctMiss(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.L0HitRate = 0
	cfg.MSHRCapacity = 1
	cluster := newFakeCluster()
	sg := NewSubgraph(cfg, 0, 0, cluster, baseServerConfig(), baseServerConfig())

	req := &Request{ID: 1, Addr: 0, Bytes: 4, ActiveLanes: 1, Kind: Load}
	_, rejected := sg.Issue(0, req)
	require.Empty(t, rejected)

	req2 := &Request{ID: 2, Addr: 128, Bytes: 4, ActiveLanes: 1, Kind: Load}
	_, rejected2 := sg.Issue(0, req2)
	require.Len(t, rejected2, 1, "a second distinct line must be rejected while the table is at capacity 1")
	require.Equal(t, QueueFull, rejected2[0].Retry.Reason)
	require.Len(t, cluster.pending[0], 1, "the rejected child must never have reached the cluster")
}

func TestSubgraph_TickDrainsAdmissionSlotsFreeingFutureCapacity(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.L0HitRate = 0
	cluster := newFakeCluster()
	admissionCfg := timeq.ServerConfig{BaseLatency: 0, BytesPerCycle: 1, QueueCapacity: 1, CompletionsPerCycle: 1}
	sg := NewSubgraph(cfg, 0, 0, cluster, admissionCfg, baseServerConfig())

	req := &Request{ID: 1, Addr: 0, Bytes: 4, ActiveLanes: 1, Kind: Load}
	_, rejected := sg.Issue(0, req)
	require.Empty(t, rejected)

	req2 := &Request{ID: 2, Addr: 128, Bytes: 4, ActiveLanes: 1, Kind: Load}
	_, rejected2 := sg.Issue(0, req2)
	require.Len(t, rejected2, 1, "the admission server's single pending slot is still occupied this cycle")

	// Without Tick ever draining the admission server's ready FIFO, its
	// pending queue only grows: every later distinct-line miss would be
	// permanently QueueFull regardless of how many cycles pass.
	sg.Tick(0)

	req3 := &Request{ID: 3, Addr: 256, Bytes: 4, ActiveLanes: 1, Kind: Load}
	_, rejected3 := sg.Issue(1, req3)
	require.Empty(t, rejected3, "Tick must drain the admission server's ready slot so a fresh miss can be admitted")
}

func TestSubgraph_FlushL0InvalidatesTagArrayOnCompletion(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cluster := newFakeCluster()
	sg := NewSubgraph(cfg, 0, 0, cluster, baseServerConfig(), timeq.ServerConfig{BaseLatency: 0, BytesPerCycle: 4096, QueueCapacity: 4, CompletionsPerCycle: 1})
	sg.l0.Fill(7)
	require.True(t, sg.l0.Probe(7))

	req := &Request{ID: 1, Kind: FlushL0}
	childCount, rejected := sg.Issue(0, req)
	require.Equal(t, 1, childCount)
	require.Empty(t, rejected)

	// 4096 flush bytes at 4096 bytes/cycle: the flush is ready at cycle 1.
	done := sg.Tick(1)
	require.Len(t, done, 1)
	require.False(t, sg.l0.Probe(7))
}
