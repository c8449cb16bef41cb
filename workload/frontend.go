// Package workload provides a synthetic core.Frontend driving the
// simulator from a configurable instruction mix, the same partitioned-RNG
// derivation the teacher's sim.PartitionedRNG uses to keep workload
// generation reproducible and isolated from every other subsystem's
// random draws.
package workload

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/gputfe/tfe/core"
	"github.com/gputfe/tfe/gmem"
	"github.com/gputfe/tfe/stages"
	"github.com/gputfe/tfe/timeq"
)

// SimulationKey uniquely identifies a reproducible generation run: two runs
// with the same key and Mix produce bit-for-bit identical instruction
// streams.
type SimulationKey int64

// PartitionedRNG hands out one deterministically-seeded *rand.Rand per
// named subsystem, derived from a single master key so unrelated draws
// (per-core instruction selection, per-request address generation) never
// perturb each other.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, subsystems: make(map[string]*rand.Rand)}
}

// ForSubsystem returns (creating and caching on first use) the RNG for name.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	seed := int64(p.key) ^ fnv1a64(name)
	rng := rand.New(rand.NewSource(seed))
	p.subsystems[name] = rng
	return rng
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// Mix gives the relative weight of each instruction kind a warp may issue
// next; weights need not sum to 1 (they're normalized at selection time).
type Mix struct {
	Gmem         float64 `yaml:"gmem"`
	Smem         float64 `yaml:"smem"`
	Icache       float64 `yaml:"icache"`
	OperandFetch float64 `yaml:"operand_fetch"`
	Fence        float64 `yaml:"fence"`
	Barrier      float64 `yaml:"barrier"`
	DMA          float64 `yaml:"dma"`
}

// DefaultMix is memory-heavy: global and shared memory accesses make up
// most of the mix, with regular icache/operand traffic and occasional
// synchronization and DMA.
func DefaultMix() Mix {
	return Mix{
		Gmem: 0.35, Smem: 0.25, Icache: 0.2, OperandFetch: 0.1,
		Fence: 0.04, Barrier: 0.05, DMA: 0.01,
	}
}

// Config parameterizes the synthetic generator (spec.md's Supplemented
// Features: a workload driver is needed to exercise every stage end to
// end, since the distilled spec describes the timing components but not
// a traffic source).
type Config struct {
	Seed          int64 `yaml:"seed"`
	NumWarps      int   `yaml:"num_warps"`
	LanesPerWarp  int   `yaml:"lanes_per_warp"`
	LineBytes     uint32 `yaml:"gmem_line_bytes"`
	SmemBanks     int   `yaml:"smem_banks"`
	SmemWordBytes uint32 `yaml:"smem_word_bytes"`
	BarrierID     int   `yaml:"barrier_id"`
	ExpectedWarps int   `yaml:"barrier_expected_warps"`
	Mix           Mix   `yaml:"mix"`
}

// Generator implements core.Frontend over a weighted instruction mix,
// generating a fresh synthetic request for a warp whenever the scheduler
// grants it an issue slot.
type Generator struct {
	cfg    Config
	rng    *PartitionedRNG
	nextID map[int]uint64
}

func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg:    cfg,
		rng:    NewPartitionedRNG(SimulationKey(cfg.Seed)),
		nextID: make(map[int]uint64),
	}
}

func (g *Generator) allocID(warpID int) uint64 {
	id := g.nextID[warpID]
	g.nextID[warpID] = id + 1
	return uint64(warpID)<<48 | id
}

// NextRequest implements core.Frontend: it samples one instruction kind
// from cfg.Mix and synthesizes the matching request, addressed so repeated
// calls for the same warp sweep forward through its lane footprint.
func (g *Generator) NextRequest(now timeq.Cycle, warpID int) *core.WarpRequest {
	rng := g.rng.ForSubsystem(fmt.Sprintf("warp_%d", warpID))
	kind := g.pickKind(rng)
	id := g.allocID(warpID)

	switch kind {
	case core.KindGmem:
		lanes := g.cfg.LanesPerWarp
		wordBytes := uint32(4)
		laneAddrs := make([]uint64, lanes)
		base := id * uint64(g.cfg.LineBytes) * uint64(lanes)
		for i := 0; i < lanes; i++ {
			laneAddrs[i] = base + uint64(i)*uint64(wordBytes)
		}
		k := gmem.Load
		if rng.Float64() < 0.3 {
			k = gmem.Store
		}
		return &core.WarpRequest{Kind: core.KindGmem, Gmem: &gmem.Request{
			ID: id, Addr: laneAddrs[0], LaneAddrs: laneAddrs,
			CoalescedLines: coalesceLines(laneAddrs, g.cfg.LineBytes),
			Bytes:          uint32(lanes) * wordBytes,
			ActiveLanes:    uint32(lanes), Kind: k,
		}}
	case core.KindSmem:
		addrs := make([]uint64, g.cfg.LanesPerWarp)
		for i := range addrs {
			addrs[i] = (id + uint64(i)) % uint64(g.cfg.SmemBanks*4)
		}
		return &core.WarpRequest{Kind: core.KindSmem, Smem: &core.SmemAccess{
			ID: id, LaneAddrs: addrs, BytesPerLane: g.cfg.SmemWordBytes, IsStore: rng.Float64() < 0.3,
		}}
	case core.KindIcache:
		return &core.WarpRequest{Kind: core.KindIcache, Icache: &stages.IcacheRequest{WarpID: warpID, PC: id * 4}}
	case core.KindOperandFetch:
		return &core.WarpRequest{Kind: core.KindOperandFetch, OperandFetch: &stages.OperandFetchRequest{WarpID: warpID, Lanes: uint32(g.cfg.LanesPerWarp)}}
	case core.KindFence:
		return &core.WarpRequest{Kind: core.KindFence, Fence: &stages.FenceRequest{WarpID: warpID, RequestID: id}}
	case core.KindBarrier:
		return &core.WarpRequest{Kind: core.KindBarrier, Barrier: &core.BarrierAccess{
			BarrierID: g.cfg.BarrierID, ExpectedWarps: g.cfg.ExpectedWarps,
		}}
	case core.KindDMA:
		return &core.WarpRequest{Kind: core.KindDMA, DMA: &stages.DMARequest{ID: id, Bytes: 4096}}
	default:
		return nil
	}
}

// coalesceLines derives the distinct cache lines touched by a warp's lane
// addresses, the coalescing step a real ISA-execution frontend performs
// before handing a request to the TFE (gmem.Split itself only branches on
// an already-coalesced line list, per original_source's split_gmem_request).
func coalesceLines(laneAddrs []uint64, lineBytes uint32) []uint64 {
	seen := make(map[uint64]bool, len(laneAddrs))
	lines := make([]uint64, 0, len(laneAddrs))
	for _, addr := range laneAddrs {
		line := gmem.LineAddr(addr, lineBytes)
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}
	return lines
}

func (g *Generator) pickKind(rng *rand.Rand) core.Kind {
	m := g.cfg.Mix
	total := m.Gmem + m.Smem + m.Icache + m.OperandFetch + m.Fence + m.Barrier + m.DMA
	if total <= 0 {
		return core.Nop
	}
	roll := rng.Float64() * total
	if roll -= m.Gmem; roll < 0 {
		return core.KindGmem
	}
	if roll -= m.Smem; roll < 0 {
		return core.KindSmem
	}
	if roll -= m.Icache; roll < 0 {
		return core.KindIcache
	}
	if roll -= m.OperandFetch; roll < 0 {
		return core.KindOperandFetch
	}
	if roll -= m.Fence; roll < 0 {
		return core.KindFence
	}
	if roll -= m.Barrier; roll < 0 {
		return core.KindBarrier
	}
	return core.KindDMA
}
