// Package core binds every timed component (gmem, smem, icache, operand
// fetch, writeback, DMA, fence, barrier, and the warp issue scheduler)
// into the per-cycle Core Timing Model of spec.md §4.7: eligibility,
// issue, split/admission, completion routing, and stats for a single core.
package core

import (
	"github.com/sirupsen/logrus"

	"github.com/gputfe/tfe/gmem"
	"github.com/gputfe/tfe/smem"
	"github.com/gputfe/tfe/stages"
	"github.com/gputfe/tfe/timeq"
	"github.com/gputfe/tfe/warpsched"
)

// Kind enumerates the request shapes the functional frontend can emit for
// one warp in one cycle (spec.md §6).
type Kind int

const (
	Nop Kind = iota
	KindGmem
	KindSmem
	KindIcache
	KindOperandFetch
	KindDMA
	KindTensor
	KindFence
	KindBarrier
)

// SmemAccess is the warp-wide shared-memory access the frontend supplies;
// core.Model splits it into per-bank children via smem.SplitRequest.
type SmemAccess struct {
	ID           uint64
	LaneAddrs    []uint64
	BytesPerLane uint32
	IsStore      bool
}

// BarrierAccess names the barrier a warp is arriving at.
type BarrierAccess struct {
	BarrierID     int
	ExpectedWarps int
}

// WarpRequest is the single per-warp-per-cycle request a functional
// frontend emits (spec.md §6): at most one of the typed fields is
// populated, selected by Kind.
type WarpRequest struct {
	Kind         Kind
	Gmem         *gmem.Request
	Smem         *SmemAccess
	Icache       *stages.IcacheRequest
	OperandFetch *stages.OperandFetchRequest
	DMA          *stages.DMARequest
	Fence        *stages.FenceRequest
	Barrier      *BarrierAccess
}

// Frontend supplies the next request for a granted warp. Out of scope per
// spec.md §1 (it is the excluded functional/ISA layer); the TFE only
// consumes its output.
type Frontend interface {
	NextRequest(now timeq.Cycle, warpID int) *WarpRequest
}

// WarpState tracks one warp's timing-relevant state between cycles
// (spec.md §3's "warp timing state").
type WarpState struct {
	LastIssueCycle timeq.Cycle
	PendingLoads   int
	PendingFence   int
	BarrierWait    bool
	IcachePending  bool
	Retired        bool
}

// Eligible reports whether warp w may be granted issue this cycle.
func (w *WarpState) Eligible(maxInflight int) bool {
	if w.Retired {
		return false
	}
	if w.BarrierWait || w.IcachePending {
		return false
	}
	if w.PendingFence > 0 {
		return false
	}
	return w.PendingLoads < maxInflight
}

// Config groups the per-core parameters that aren't owned by one of the
// component sub-configs (spec.md §6's Issue/per-lane group).
type Config struct {
	NumWarps           int             `yaml:"num_warps"`
	MaxInflightPerLane int             `yaml:"max_inflight_per_lane"`
	RetryBackoffMin    timeq.Cycle     `yaml:"retry_backoff_min"`
	Issue              warpsched.Config `yaml:"issue"`
	LogStats           bool            `yaml:"log_stats"`
}

// ClusterGmem is the shared cluster-level gmem tiers surface a core needs
// (clustermem.ClusterGmemGraph implements it; kept as an interface here so
// core does not import clustermem directly).
type ClusterGmem = gmem.ClusterPort

// SmemGraph is the shared per-cluster smem pipeline surface (smem.Subgraph
// implements it directly; kept narrow for the same reason).
type SmemGraph interface {
	TryAdmit(now timeq.Cycle, req *smem.Request, wordBytes uint32) (timeq.Ticket, *timeq.Backpressure[*smem.Request])
	CollectCompletions(coreID int, now timeq.Cycle) []*smem.Request
}

// SmemConfig groups the shared-memory layout parameters (spec.md §6's
// smem_flow group).
type SmemConfig struct {
	NumBanks    int    `yaml:"num_banks"`
	NumSubbanks int    `yaml:"num_subbanks"`
	WordBytes   uint32 `yaml:"word_bytes"`
}

// gmemOutstanding tracks how many of a warp-level gmem request's split
// children are still in flight, so the warp only unblocks once every
// coalesced child has completed.
type gmemOutstanding struct {
	remaining       int
	warpID          int
	stallOnComplete bool
}

// pendingGmemChild is a rejected gmem child awaiting retry.
type pendingGmemChild struct {
	child   *gmem.Request
	retryAt timeq.Cycle
}

// pendingSmemChild is a rejected smem bank-group awaiting retry.
type pendingSmemChild struct {
	child   *smem.Request
	retryAt timeq.Cycle
}

// gmemCompletion and smemCompletion are the two WritebackPayload variants
// this core routes (spec.md §4.5's "union payload {GmemCompletion |
// SmemCompletion}").
type gmemCompletion struct{ warpID int }
type smemCompletion struct {
	warpID    int
	requestID uint64
}

// Model is the per-core timing model: owns the core's private gmem
// pipeline, shares the cluster's smem/barrier pipelines, and coordinates
// the auxiliary stages and warp state that together decide eligibility,
// issue, and completion each cycle.
type Model struct {
	coreID    int
	clusterID int
	cfg       Config
	smemCfg   SmemConfig

	frontend  Frontend
	gmemGraph *gmem.Subgraph
	smemGraph SmemGraph
	scheduler *warpsched.Scheduler

	icache       *stages.Icache
	operandFetch *stages.OperandFetch
	writeback    *stages.Writeback
	dma          *stages.DMA
	fence        *stages.Fence
	barrier      *stages.Barrier

	warps []WarpState

	pendingGmem []pendingGmemChild
	pendingSmem []pendingSmemChild

	gmemOutstanding map[uint64]*gmemOutstanding
	smemOutstanding map[uint64]int
	smemWarpOf      map[uint64]int

	log *logrus.Entry
}

// NewModel constructs a core's timing model, wiring it to the (already
// shared) cluster gmem/smem graphs.
func NewModel(
	coreID, clusterID int,
	cfg Config,
	smemCfg SmemConfig,
	frontend Frontend,
	gmemPolicy gmem.PolicyConfig,
	cluster ClusterGmem,
	smemGraph SmemGraph,
	barrier *stages.Barrier,
	admissionCfg, flushCfg timeq.ServerConfig,
	icacheEnabled bool, icacheHitRate float64, icacheSeed uint64, icacheHitCfg, icacheMissCfg timeq.ServerConfig,
	operandCfg timeq.ServerConfig,
	writebackCfg timeq.ServerConfig,
	dmaCfg timeq.ServerConfig,
	fenceCfg timeq.ServerConfig,
) *Model {
	return &Model{
		coreID:          coreID,
		clusterID:       clusterID,
		cfg:             cfg,
		smemCfg:         smemCfg,
		frontend:        frontend,
		gmemGraph:       gmem.NewSubgraph(gmemPolicy, coreID, clusterID, cluster, admissionCfg, flushCfg),
		smemGraph:       smemGraph,
		scheduler:       warpsched.NewScheduler(cfg.Issue),
		icache:          stages.NewIcache(icacheEnabled, icacheHitRate, icacheSeed, icacheHitCfg, icacheMissCfg),
		operandFetch:    stages.NewOperandFetch(true, operandCfg),
		writeback:       stages.NewWriteback(true, writebackCfg),
		dma:             stages.NewDMA(true, dmaCfg),
		fence:           stages.NewFence(true, fenceCfg),
		barrier:         barrier,
		warps:           make([]WarpState, cfg.NumWarps),
		gmemOutstanding: make(map[uint64]*gmemOutstanding),
		smemOutstanding: make(map[uint64]int),
		smemWarpOf:      make(map[uint64]int),
		log:             logrus.WithField("core", coreID).WithField("cluster", clusterID),
	}
}

// Warp exposes warp w's state for diagnostics/tests.
func (m *Model) Warp(w int) *WarpState { return &m.warps[w] }

// GmemStats exposes the core's gmem pipeline counters.
func (m *Model) GmemStats() *gmem.Stats { return m.gmemGraph.Stats() }

// Step runs the per-cycle pipeline of spec.md §4.7: collect completions,
// tick writeback/fence/DMA/icache and pop ready items, compute
// eligibility, schedule, issue, retry pending admissions, and (if enabled)
// log a diagnostic line. The cluster-level gmem/smem/barrier ticks are the
// caller's responsibility — invoked once per cluster per cycle, not once
// per core (spec.md §5) — so Step only drives this core's own nodes.
func (m *Model) Step(now timeq.Cycle) {
	m.collectCompletions(now)
	m.drainAuxiliary(now)
	eligible := m.computeEligibility()
	grants := m.scheduler.Select(eligible)
	m.issueGranted(now, grants)
	m.retryPending(now)
	m.logTick(now)
}

func (m *Model) collectCompletions(now timeq.Cycle) {
	for _, done := range m.gmemGraph.Tick(now) {
		entry, ok := m.gmemOutstanding[done.ID]
		if !ok {
			continue
		}
		entry.remaining--
		if entry.remaining > 0 {
			continue
		}
		delete(m.gmemOutstanding, done.ID)
		if entry.stallOnComplete {
			m.writeback.TryIssue(now, gmemCompletion{warpID: entry.warpID}, 0)
		}
	}

	for _, done := range m.smemGraph.CollectCompletions(m.coreID, now) {
		remaining, ok := m.smemOutstanding[done.ID]
		if !ok {
			continue
		}
		remaining--
		if remaining > 0 {
			m.smemOutstanding[done.ID] = remaining
			continue
		}
		delete(m.smemOutstanding, done.ID)
		warpID := m.smemWarpOf[done.ID]
		delete(m.smemWarpOf, done.ID)
		m.writeback.TryIssue(now, smemCompletion{warpID: warpID, requestID: done.ID}, 0)
	}
}

func (m *Model) drainAuxiliary(now timeq.Cycle) {
	m.writeback.Tick(now, func(p stages.WritebackPayload) {
		switch c := p.(type) {
		case gmemCompletion:
			w := &m.warps[c.warpID]
			if w.PendingLoads > 0 {
				w.PendingLoads--
			}
		case smemCompletion:
			w := &m.warps[c.warpID]
			if w.PendingLoads > 0 {
				w.PendingLoads--
			}
		}
	})
	m.fence.Tick(now, func(req *stages.FenceRequest) {
		w := &m.warps[req.WarpID]
		if w.PendingFence > 0 {
			w.PendingFence--
		}
	})
	m.dma.Tick(now, func(*stages.DMARequest) {})
	m.icache.Tick(now, func(req *stages.IcacheRequest) {
		m.warps[req.WarpID].IcachePending = false
	})
}

// ReleaseBarrierWarp clears warpID's BarrierWait flag. The barrier itself
// is cluster-shared state: it is ticked exactly once per cluster per cycle
// by the caller that owns the cluster (not by Step, which would tick it
// once per core), which then decodes each released participant ID back to
// a (core, warp) pair and calls this on the matching core's Model.
func (m *Model) ReleaseBarrierWarp(warpID int) {
	m.warps[warpID].BarrierWait = false
}

// BarrierParticipant returns the globally-unique participant ID this
// core's warpID should arrive at a barrier with, so that two cores sharing
// a numerically-identical warpID never collide in the same barrier
// instance's arrival set.
func (m *Model) BarrierParticipant(warpID int) int {
	return m.coreID*m.cfg.NumWarps + warpID
}

// DecodeBarrierParticipant inverts BarrierParticipant for a given
// numWarps-per-core stride, splitting a released participant ID back into
// its (coreID, warpID) pair.
func DecodeBarrierParticipant(participant, numWarps int) (coreID, warpID int) {
	return participant / numWarps, participant % numWarps
}

func (m *Model) computeEligibility() []bool {
	eligible := make([]bool, m.cfg.NumWarps)
	for i := range m.warps {
		eligible[i] = m.warps[i].Eligible(m.cfg.MaxInflightPerLane)
	}
	return eligible
}

func (m *Model) issueGranted(now timeq.Cycle, grants []bool) {
	for warpID, granted := range grants {
		if !granted {
			continue
		}
		req := m.frontend.NextRequest(now, warpID)
		if req == nil || req.Kind == Nop {
			continue
		}
		m.warps[warpID].LastIssueCycle = now
		m.issueOne(now, warpID, req)
	}
}

func (m *Model) issueOne(now timeq.Cycle, warpID int, req *WarpRequest) {
	switch req.Kind {
	case KindGmem:
		m.issueGmem(now, warpID, req.Gmem)
	case KindSmem:
		m.issueSmem(now, warpID, req.Smem)
	case KindIcache:
		m.warps[warpID].IcachePending = true
		if _, rej, _ := m.icache.TryFetch(now, req.Icache, 0); rej != nil {
			m.warps[warpID].IcachePending = false
		}
	case KindOperandFetch:
		m.operandFetch.TryIssue(now, req.OperandFetch, 0)
	case KindDMA:
		m.dma.TryIssue(now, req.DMA)
	case KindFence:
		m.warps[warpID].PendingFence++
		if _, rej := m.fence.TryIssue(now, req.Fence); rej != nil {
			m.warps[warpID].PendingFence--
		}
	case KindBarrier:
		m.warps[warpID].BarrierWait = true
		if m.barrier != nil {
			m.barrier.Arrive(now, m.clusterID, req.Barrier.BarrierID, m.BarrierParticipant(warpID), req.Barrier.ExpectedWarps)
		}
	case KindTensor:
		// Tensor requests ride the same bandwidth-modeled station as DMA;
		// no distinct compute-pipeline station exists (out of scope, spec.md §1).
		m.dma.TryIssue(now, &stages.DMARequest{ID: uint64(warpID), Bytes: 0})
	}
}

func (m *Model) issueGmem(now timeq.Cycle, warpID int, req *gmem.Request) {
	req.WarpID = warpID
	req.CoreID = m.coreID
	req.ClusterID = m.clusterID
	req.IssueAt = uint64(now)
	if req.IsLoad() || req.IsFlush() {
		req.StallOnComplete = true
	}
	if req.StallOnComplete {
		m.warps[warpID].PendingLoads++
	}

	childCount, rejected := m.gmemGraph.Issue(now, req)
	m.gmemOutstanding[req.ID] = &gmemOutstanding{
		remaining:       childCount,
		warpID:          warpID,
		stallOnComplete: req.StallOnComplete,
	}
	for _, r := range rejected {
		m.pendingGmem = append(m.pendingGmem, pendingGmemChild{child: r.Child, retryAt: timeq.Cycle(r.Retry.RetryAt)})
	}
}

func (m *Model) issueSmem(now timeq.Cycle, warpID int, access *SmemAccess) {
	children := smem.SplitRequest(access.ID, m.coreID, warpID, access.LaneAddrs, access.IsStore,
		m.smemCfg.NumBanks, m.smemCfg.NumSubbanks, m.smemCfg.WordBytes)
	if len(children) == 0 {
		return
	}
	m.smemOutstanding[access.ID] = len(children)
	m.smemWarpOf[access.ID] = warpID
	m.warps[warpID].PendingLoads++

	for _, child := range children {
		_, bp := m.smemGraph.TryAdmit(now, child, m.smemCfg.WordBytes)
		if bp == nil {
			continue
		}
		retry := bp.AvailableAt
		if bp.Reason == timeq.QueueFull {
			retry = now + 1
		}
		m.pendingSmem = append(m.pendingSmem, pendingSmemChild{
			child:   child,
			retryAt: timeq.NormalizeRetry(now, retry),
		})
	}
}

func (m *Model) retryPending(now timeq.Cycle) {
	var keepGmem []pendingGmemChild
	for _, p := range m.pendingGmem {
		if p.retryAt > now {
			keepGmem = append(keepGmem, p)
			continue
		}
		if reject := m.gmemGraph.IssueRetry(now, p.child); reject != nil {
			p.retryAt = timeq.Cycle(reject.RetryAt)
			keepGmem = append(keepGmem, p)
		}
	}
	m.pendingGmem = keepGmem

	var keepSmem []pendingSmemChild
	for _, p := range m.pendingSmem {
		if p.retryAt > now {
			keepSmem = append(keepSmem, p)
			continue
		}
		_, bp := m.smemGraph.TryAdmit(now, p.child, m.smemCfg.WordBytes)
		if bp != nil {
			retry := bp.AvailableAt
			if bp.Reason == timeq.QueueFull {
				retry = now + 1
			}
			p.retryAt = timeq.NormalizeRetry(now, retry)
			keepSmem = append(keepSmem, p)
		}
	}
	m.pendingSmem = keepSmem
}

func (m *Model) logTick(now timeq.Cycle) {
	if !m.cfg.LogStats {
		return
	}
	m.log.WithField("cycle", now).
		WithField("pending_gmem", len(m.pendingGmem)).
		WithField("pending_smem", len(m.pendingSmem)).
		Debug("core tick")
}
