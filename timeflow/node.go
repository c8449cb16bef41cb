// Package timeflow implements the flow-graph abstraction that composes
// timeq.TimedServer stations into a DAG: a node container, directed links
// with optional per-hop latency and conditional routing, and the tick/drain
// loop that advances the whole graph one cycle at a time.
package timeflow

import (
	"github.com/gputfe/tfe/timeq"
)

// NodeID identifies a node within a Graph by its stable insertion index.
type NodeID int

// Node is the capability set every timed station in a flow graph exposes.
type Node[P any] interface {
	Name() string
	TryPut(now timeq.Cycle, req timeq.ServiceRequest[P]) (timeq.Ticket, *timeq.Backpressure[P])
	Tick(now timeq.Cycle)
	PeekReady(now timeq.Cycle) *timeq.ServiceResult[P]
	TakeReady(now timeq.Cycle) *timeq.ServiceResult[P]
	Outstanding() int
	// Stall re-raises the node's internal availability by one cycle. Used
	// by the graph when a downstream sink rejects a completion this node
	// already produced (soft backpressure propagation).
	Stall(now timeq.Cycle)
}

// ServerNode wraps a single timeq.TimedServer as a flow-graph node.
type ServerNode[T any] struct {
	name   string
	server *timeq.TimedServer[T]
}

// NewServerNode builds a named ServerNode around cfg.
func NewServerNode[T any](name string, cfg timeq.ServerConfig) *ServerNode[T] {
	return &ServerNode[T]{name: name, server: timeq.NewTimedServer[T](cfg)}
}

func (n *ServerNode[T]) Name() string { return n.name }

func (n *ServerNode[T]) TryPut(now timeq.Cycle, req timeq.ServiceRequest[T]) (timeq.Ticket, *timeq.Backpressure[T]) {
	return n.server.TryEnqueue(now, req)
}

func (n *ServerNode[T]) Tick(now timeq.Cycle) {
	// Nodes don't self-drain into a ready buffer separate from the
	// station; PeekReady/TakeReady read straight from the station's
	// pending FIFO head. Tick here is a no-op hook required by the Node
	// interface; the delay nodes AddLink inserts are ServerNodes too.
	_ = now
}

func (n *ServerNode[T]) PeekReady(now timeq.Cycle) *timeq.ServiceResult[T] {
	return n.server.PeekReady(now)
}

func (n *ServerNode[T]) TakeReady(now timeq.Cycle) *timeq.ServiceResult[T] {
	return n.server.TakeReady(now)
}

func (n *ServerNode[T]) Outstanding() int {
	return n.server.Outstanding()
}

func (n *ServerNode[T]) Stall(now timeq.Cycle) {
	n.server.Stall(now)
}

// Server exposes the underlying station for callers that need
// OldestTicket/AvailableAt to compute retry hints (mirrors the source's
// direct TimedServer access from e.g. FenceQueue/DmaQueue).
func (n *ServerNode[T]) Server() *timeq.TimedServer[T] {
	return n.server
}
