package timeflow

import (
	"fmt"

	"github.com/gputfe/tfe/timeq"
)

// unboundedCycle is used to model a "trivial server" of unlimited capacity
// and completion bandwidth for the delay node inserted by AddLink when a
// link carries a fixed per-hop latency (spec.md §4.2).
const unboundedCycle = 1 << 30

// Link connects a source node's output to a sink node, optionally gated by a
// predicate over the payload. Multiple links may be registered for the same
// source to express conditional routing (e.g. an L0 cache hit bypassing L1
// and L2 straight to the return node); links are evaluated in registration
// order and the first match wins. A link with When == nil is a catch-all and
// must be the last one registered for its source.
type Link[P any] struct {
	Sink    NodeID
	Latency timeq.Cycle
	When    func(P) bool
}

// Graph is a DAG of timed nodes connected by links. Callers must add nodes
// and links in topological order (source before sink); Tick advances nodes
// in that same insertion order. The only links that route a request to a
// node with a lower ID are those out of the delay nodes AddLink appends after
// their sinks, so the graph still has no cycles (spec.md §3's "no cycles"
// invariant).
type Graph[P any] struct {
	nodes    []Node[P]
	outLinks map[NodeID][]Link[P]
}

// NewGraph constructs an empty flow graph.
func NewGraph[P any]() *Graph[P] {
	return &Graph[P]{outLinks: make(map[NodeID][]Link[P])}
}

// AddNode registers a node and returns its stable ID.
func (g *Graph[P]) AddNode(n Node[P]) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	return id
}

// AddLink registers a routing link from src. A nonzero Latency transparently
// inserts a delay node between src and the declared sink, per spec.md §4.2.
func (g *Graph[P]) AddLink(src NodeID, link Link[P]) {
	if link.Latency == 0 {
		g.outLinks[src] = append(g.outLinks[src], Link[P]{Sink: link.Sink, When: link.When})
		return
	}
	delay := NewServerNode[P](fmt.Sprintf("link-delay[%d->%d]", src, link.Sink), timeq.ServerConfig{
		BaseLatency:         link.Latency,
		BytesPerCycle:       unboundedCycle,
		QueueCapacity:       unboundedCycle,
		CompletionsPerCycle: unboundedCycle,
	})
	delayID := g.AddNode(delay)
	g.outLinks[src] = append(g.outLinks[src], Link[P]{Sink: delayID, When: link.When})
	g.outLinks[delayID] = append(g.outLinks[delayID], Link[P]{Sink: link.Sink})
}

// TryPut admits req at the named ingress node.
func (g *Graph[P]) TryPut(node NodeID, now timeq.Cycle, req timeq.ServiceRequest[P]) (timeq.Ticket, *timeq.Backpressure[P]) {
	return g.nodes[node].TryPut(now, req)
}

// WithNodeMut gives controlled mutable access to a specific node, e.g. for a
// subgraph draining its return node directly instead of through a link.
func (g *Graph[P]) WithNodeMut(node NodeID, fn func(Node[P])) {
	fn(g.nodes[node])
}

// Node returns the node registered under id.
func (g *Graph[P]) Node(id NodeID) Node[P] {
	return g.nodes[id]
}

// Outstanding sums in-flight requests across every node, for diagnostics.
func (g *Graph[P]) Outstanding() int {
	total := 0
	for _, n := range g.nodes {
		total += n.Outstanding()
	}
	return total
}

// Tick advances every node once, then drains ready completions along
// registered links. A completion that no link accepts (every When predicate
// false, or no link registered) is left at the head of its source's ready
// buffer for a later cycle or for the owning subgraph to collect directly
// via WithNodeMut. A source with links is stalled by one cycle when no
// predicate matches or the sink rejects; a source with no links is left
// untouched.
func (g *Graph[P]) Tick(now timeq.Cycle) {
	for _, n := range g.nodes {
		n.Tick(now)
	}
	for srcID := NodeID(0); int(srcID) < len(g.nodes); srcID++ {
		links := g.outLinks[srcID]
		if len(links) == 0 {
			continue
		}
		src := g.nodes[srcID]
		for {
			res := src.PeekReady(now)
			if res == nil {
				break
			}
			link, ok := selectLink(links, res.Payload)
			if !ok {
				src.Stall(now)
				break
			}
			sink := g.nodes[link.Sink]
			_, bp := sink.TryPut(now, timeq.ServiceRequest[P]{Payload: res.Payload, Bytes: res.Ticket.Bytes})
			if bp != nil {
				src.Stall(now)
				break
			}
			src.TakeReady(now)
		}
	}
}

func selectLink[P any](links []Link[P], payload P) (Link[P], bool) {
	for _, l := range links {
		if l.When == nil || l.When(payload) {
			return l, true
		}
	}
	return Link[P]{}, false
}
