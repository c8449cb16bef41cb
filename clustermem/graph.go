// Package clustermem holds the cluster-wide shared memory tiers: the L1
// banks, L2 banks, and DRAM stage that every core's gmem.Subgraph shares and
// arbitrates for admission into, one cycle at a time, under a single
// writer-exclusive mutex (spec.md §5's cluster-level arbitration).
package clustermem

import (
	"fmt"
	"sync"

	"github.com/gputfe/tfe/gmem"
	"github.com/gputfe/tfe/timeflow"
	"github.com/gputfe/tfe/timeq"
)

// Config bundles the per-tier TimedServer configuration and writeback
// latency extensions for a cluster's shared gmem graph.
type Config struct {
	NumCores         int                `yaml:"num_cores"`
	L1Banks          int                `yaml:"l1_banks"`
	L2Banks          int                `yaml:"l2_banks"`
	L1               timeq.ServerConfig `yaml:"l1"`
	L2               timeq.ServerConfig `yaml:"l2"`
	DRAM             timeq.ServerConfig `yaml:"dram"`
	L1WritebackExtra timeq.Cycle        `yaml:"l1_writeback_extra"`
	L2WritebackExtra timeq.Cycle        `yaml:"l2_writeback_extra"`
}

// ClusterGmemGraph is the shared L1/L2/DRAM flow graph for one cluster. All
// admission and ticking happens under mu, since every core in the cluster
// contends for the same banks (spec.md: "Cluster-level gmem graph ...
// arbitrated under a writer-exclusive mutex").
type ClusterGmemGraph struct {
	mu sync.Mutex

	cfg Config
	g   *timeflow.Graph[*gmem.Request]

	l1Nodes    []timeflow.NodeID
	l2Nodes    []timeflow.NodeID
	dramNode   timeflow.NodeID
	l1Tags     []*gmem.CacheTagArray
	l2Tags     []*gmem.CacheTagArray
	coreReturn []timeflow.NodeID
}

// NewClusterGmemGraph wires the shared banks and one terminal return node
// per core, with routing links that read each request's L1Hit/L2Hit/bank
// fields: the banks are set by the issuing core's Subgraph, the hit flags by
// TryAdmitL1. The links themselves decide nothing.
func NewClusterGmemGraph(cfg Config, l1Sets, l1Ways, l2Sets, l2Ways int) *ClusterGmemGraph {
	g := timeflow.NewGraph[*gmem.Request]()

	c := &ClusterGmemGraph{cfg: cfg, g: g}

	c.l1Nodes = make([]timeflow.NodeID, cfg.L1Banks)
	c.l1Tags = make([]*gmem.CacheTagArray, cfg.L1Banks)
	for i := 0; i < cfg.L1Banks; i++ {
		c.l1Nodes[i] = g.AddNode(timeflow.NewServerNode[*gmem.Request](fmt.Sprintf("l1[%d]", i), cfg.L1))
		c.l1Tags[i] = gmem.NewCacheTagArray(l1Sets, l1Ways)
	}

	c.l2Nodes = make([]timeflow.NodeID, cfg.L2Banks)
	c.l2Tags = make([]*gmem.CacheTagArray, cfg.L2Banks)
	for j := 0; j < cfg.L2Banks; j++ {
		c.l2Nodes[j] = g.AddNode(timeflow.NewServerNode[*gmem.Request](fmt.Sprintf("l2[%d]", j), cfg.L2))
		c.l2Tags[j] = gmem.NewCacheTagArray(l2Sets, l2Ways)
	}

	c.dramNode = g.AddNode(timeflow.NewServerNode[*gmem.Request]("dram", cfg.DRAM))

	c.coreReturn = make([]timeflow.NodeID, cfg.NumCores)
	for k := 0; k < cfg.NumCores; k++ {
		c.coreReturn[k] = g.AddNode(timeflow.NewServerNode[*gmem.Request](fmt.Sprintf("return[%d]", k), timeq.ServerConfig{
			BaseLatency:         0,
			BytesPerCycle:       1 << 30,
			QueueCapacity:       1 << 30,
			CompletionsPerCycle: 1 << 30,
		}))
	}

	for i := 0; i < cfg.L1Banks; i++ {
		i := i
		for k := 0; k < cfg.NumCores; k++ {
			k := k
			g.AddLink(c.l1Nodes[i], timeflow.Link[*gmem.Request]{
				Sink: c.coreReturn[k],
				When: func(r *gmem.Request) bool { return r.L1Hit && r.CoreID == k },
			})
		}
		for j := 0; j < cfg.L2Banks; j++ {
			j := j
			g.AddLink(c.l1Nodes[i], timeflow.Link[*gmem.Request]{
				Sink:    c.l2Nodes[j],
				Latency: cfg.L1WritebackExtra,
				When:    func(r *gmem.Request) bool { return !r.L1Hit && r.L2Bank == uint64(j) && r.L1Writeback },
			})
			g.AddLink(c.l1Nodes[i], timeflow.Link[*gmem.Request]{
				Sink: c.l2Nodes[j],
				When: func(r *gmem.Request) bool { return !r.L1Hit && r.L2Bank == uint64(j) && !r.L1Writeback },
			})
		}
	}

	for j := 0; j < cfg.L2Banks; j++ {
		for k := 0; k < cfg.NumCores; k++ {
			k := k
			g.AddLink(c.l2Nodes[j], timeflow.Link[*gmem.Request]{
				Sink: c.coreReturn[k],
				When: func(r *gmem.Request) bool { return r.L2Hit && r.CoreID == k },
			})
		}
		g.AddLink(c.l2Nodes[j], timeflow.Link[*gmem.Request]{
			Sink:    c.dramNode,
			Latency: cfg.L2WritebackExtra,
			When:    func(r *gmem.Request) bool { return !r.L2Hit && r.L2Writeback },
		})
		g.AddLink(c.l2Nodes[j], timeflow.Link[*gmem.Request]{
			Sink: c.dramNode,
			When: func(r *gmem.Request) bool { return !r.L2Hit },
		})
	}

	for k := 0; k < cfg.NumCores; k++ {
		k := k
		g.AddLink(c.dramNode, timeflow.Link[*gmem.Request]{
			Sink: c.coreReturn[k],
			When: func(r *gmem.Request) bool { return r.CoreID == k },
		})
	}

	return c
}

// TryAdmitL1 is the sole entry point into the cluster graph: every core's
// L0 miss enters at its line's L1 bank. This call decides hit/miss at L1 and
// L2 by probing the shared tag arrays (touch on hit, fill on miss) and
// stores the result in req.L1Hit/req.L2Hit; the L1/L2 hit rates in
// gmem.PolicyConfig are not consulted.
func (c *ClusterGmemGraph) TryAdmitL1(now timeq.Cycle, coreID int, req *gmem.Request) (timeq.Ticket, *gmem.Reject) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.L1Hit = c.l1Tags[req.L1Bank].Probe(req.LineAddr)
	if req.L1Hit {
		c.l1Tags[req.L1Bank].Touch(req.LineAddr)
	} else {
		c.l1Tags[req.L1Bank].Fill(req.LineAddr)
		req.L2Hit = c.l2Tags[req.L2Bank].Probe(req.LineAddr)
		if req.L2Hit {
			c.l2Tags[req.L2Bank].Touch(req.LineAddr)
		} else {
			c.l2Tags[req.L2Bank].Fill(req.LineAddr)
		}
	}

	ticket, bp := c.g.TryPut(c.l1Nodes[req.L1Bank], now, timeq.NewServiceRequest(req, req.Bytes))
	if bp == nil {
		return ticket, nil
	}
	reason := gmem.QueueFull
	retry := bp.AvailableAt
	if bp.Reason == timeq.Busy {
		reason = gmem.Busy
	}
	return timeq.Ticket{}, &gmem.Reject{RetryAt: uint64(timeq.NormalizeRetry(now, retry)), Reason: reason}
}

// Tick advances every shared bank and the DRAM stage once for the whole
// cluster (not once per core).
func (c *ClusterGmemGraph) Tick(now timeq.Cycle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.g.Tick(now)
}

// CollectCompletions drains coreID's return node. Called once per core per
// cycle, after Tick.
func (c *ClusterGmemGraph) CollectCompletions(coreID int, now timeq.Cycle) []*gmem.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*gmem.Request
	node := c.g.Node(c.coreReturn[coreID])
	for {
		res := node.TakeReady(now)
		if res == nil {
			break
		}
		out = append(out, res.Payload)
	}
	return out
}

// Outstanding sums in-flight requests across every shared node, for
// diagnostics.
func (c *ClusterGmemGraph) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.g.Outstanding()
}
