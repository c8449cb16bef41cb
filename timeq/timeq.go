// Package timeq implements the timed-server primitive: a single rate-limited
// station with bounded queue capacity and a per-cycle completion budget.
// Every higher-level queue in the TFE (gmem tiers, smem banks, icache,
// writeback, DMA, fence, barrier) composes a TimedServer.
package timeq

// Cycle is a monotonic simulator cycle counter.
type Cycle uint64

// RejectReason distinguishes the two ways a station can refuse admission.
type RejectReason int

const (
	// Busy means the station is still occupied by an earlier request;
	// retry at AvailableAt.
	Busy RejectReason = iota
	// QueueFull means the pending FIFO is at capacity; retry at the head's
	// ready time.
	QueueFull
)

func (r RejectReason) String() string {
	switch r {
	case Busy:
		return "busy"
	case QueueFull:
		return "queue_full"
	default:
		return "unknown"
	}
}

// Ticket is an immutable record of an admission.
type Ticket struct {
	IssueAt Cycle
	ReadyAt Cycle
	Bytes   uint32
}

// Synthetic reports whether this ticket represents a zero-cost passthrough
// issued by a disabled stage (ReadyAt == IssueAt).
func (t Ticket) Synthetic() bool {
	return t.ReadyAt == t.IssueAt
}

// NewTicket builds a ticket, asserting the ready_at >= issue_at invariant.
func NewTicket(issueAt, readyAt Cycle, bytes uint32) Ticket {
	if readyAt < issueAt {
		panic("timeq: ticket ready_at before issue_at")
	}
	return Ticket{IssueAt: issueAt, ReadyAt: readyAt, Bytes: bytes}
}

// SyntheticTicket builds a zero-cost passthrough ticket.
func SyntheticTicket(now Cycle, bytes uint32) Ticket {
	return Ticket{IssueAt: now, ReadyAt: now, Bytes: bytes}
}

// ServiceRequest is a payload plus its byte cost. The station owns it until
// completion.
type ServiceRequest[T any] struct {
	Payload T
	Bytes   uint32
}

// NewServiceRequest constructs a ServiceRequest.
func NewServiceRequest[T any](payload T, bytes uint32) ServiceRequest[T] {
	return ServiceRequest[T]{Payload: payload, Bytes: bytes}
}

// ServiceResult is emitted when a request's ticket becomes ready and the
// per-cycle completion budget allows delivery.
type ServiceResult[T any] struct {
	Payload T
	Ticket  Ticket
}

// ServerConfig parameterizes a TimedServer.
type ServerConfig struct {
	BaseLatency         Cycle  `yaml:"base_latency"`
	BytesPerCycle       uint32 `yaml:"bytes_per_cycle"`
	QueueCapacity       int    `yaml:"queue_capacity"`
	CompletionsPerCycle int    `yaml:"completions_per_cycle"`
}

// Validate enforces the configuration-error taxonomy: zero BytesPerCycle or
// negative capacities are caught at construction time, not at runtime.
func (c ServerConfig) Validate() error {
	if c.BytesPerCycle == 0 {
		return errBytesPerCycle
	}
	if c.QueueCapacity < 0 {
		return errQueueCapacity
	}
	if c.CompletionsPerCycle < 0 {
		return errCompletionsPerCycle
	}
	return nil
}

// pendingEntry pairs a request with the ticket it was admitted with.
type pendingEntry[T any] struct {
	payload T
	ticket  Ticket
}

// Backpressure is returned by TryEnqueue when a station cannot currently
// accept a request. Reason distinguishes Busy (station occupied, retry at
// AvailableAt) from QueueFull (pending FIFO at capacity, retry at the head's
// ready time). The rejected request is carried back so the caller never has
// to have cloned it defensively before the attempt.
type Backpressure[T any] struct {
	Reason      RejectReason
	Request     ServiceRequest[T]
	AvailableAt Cycle
}

// TimedServer is a single timed station: a bounded FIFO of pending requests,
// an available_at cycle (earliest cycle the station may accept the next
// request), and a ready buffer drained at a fixed completions-per-cycle
// budget.
type TimedServer[T any] struct {
	cfg         ServerConfig
	pending     []pendingEntry[T]
	availableAt Cycle
}

// NewTimedServer constructs a station. completions_per_cycle of 0 is treated
// as 1 (spec.md §9's Open Question: configs that omit it default to 1, and a
// caller passing 0 through explicitly gets the same safe default rather than
// an unlimited server).
func NewTimedServer[T any](cfg ServerConfig) *TimedServer[T] {
	if cfg.CompletionsPerCycle <= 0 {
		cfg.CompletionsPerCycle = 1
	}
	return &TimedServer[T]{cfg: cfg}
}

// ceilDiv computes ceil(a / b) for b > 0.
func ceilDiv(a uint32, b uint32) Cycle {
	if b == 0 {
		return Cycle(a)
	}
	return Cycle((uint64(a) + uint64(b) - 1) / uint64(b))
}

// TryEnqueue admits req at cycle now, or returns the Backpressure that
// explains why not. On success it advances available_at to the new
// ready_at, enforcing strict FIFO within the pending buffer.
func (s *TimedServer[T]) TryEnqueue(now Cycle, req ServiceRequest[T]) (Ticket, *Backpressure[T]) {
	if len(s.pending) >= s.cfg.QueueCapacity {
		return Ticket{}, &Backpressure[T]{Reason: QueueFull, Request: req}
	}
	start := now
	if s.availableAt > start {
		start = s.availableAt
	}
	if start > now && len(s.pending) > 0 && s.availableAt > now {
		return Ticket{}, &Backpressure[T]{Reason: Busy, Request: req, AvailableAt: s.availableAt}
	}
	readyAt := start + s.cfg.BaseLatency + ceilDiv(req.Bytes, s.cfg.BytesPerCycle)
	ticket := Ticket{IssueAt: now, ReadyAt: readyAt, Bytes: req.Bytes}
	s.pending = append(s.pending, pendingEntry[T]{payload: req.Payload, ticket: ticket})
	s.availableAt = readyAt
	return ticket, nil
}

// ServiceReady drains up to CompletionsPerCycle items from the head of the
// pending FIFO whose ticket is ready by now, delivering each to onReady in
// strict FIFO order.
func (s *TimedServer[T]) ServiceReady(now Cycle, onReady func(ServiceResult[T])) {
	delivered := 0
	for len(s.pending) > 0 && delivered < s.cfg.CompletionsPerCycle {
		head := s.pending[0]
		if head.ticket.ReadyAt > now {
			break
		}
		s.pending = s.pending[1:]
		onReady(ServiceResult[T]{Payload: head.payload, Ticket: head.ticket})
		delivered++
	}
}

// PeekReady returns the head result without removing it, if it is ready by
// now.
func (s *TimedServer[T]) PeekReady(now Cycle) *ServiceResult[T] {
	if len(s.pending) == 0 {
		return nil
	}
	head := s.pending[0]
	if head.ticket.ReadyAt > now {
		return nil
	}
	return &ServiceResult[T]{Payload: head.payload, Ticket: head.ticket}
}

// TakeReady removes and returns the head result if it is ready by now.
func (s *TimedServer[T]) TakeReady(now Cycle) *ServiceResult[T] {
	res := s.PeekReady(now)
	if res == nil {
		return nil
	}
	s.pending = s.pending[1:]
	return res
}

// OldestTicket returns the head ticket, if any; callers use it to compute
// retry hints on QueueFull.
func (s *TimedServer[T]) OldestTicket() (Ticket, bool) {
	if len(s.pending) == 0 {
		return Ticket{}, false
	}
	return s.pending[0].ticket, true
}

// AvailableAt returns the earliest cycle the station may accept its next
// request.
func (s *TimedServer[T]) AvailableAt() Cycle {
	return s.availableAt
}

// Outstanding returns the number of requests currently held by the station.
func (s *TimedServer[T]) Outstanding() int {
	return len(s.pending)
}

// Stall re-raises available_at by one cycle, used by the flow graph to model
// soft backpressure when a downstream sink rejects a completion this station
// already produced.
func (s *TimedServer[T]) Stall(now Cycle) {
	if s.availableAt <= now {
		s.availableAt = now + 1
	}
}

// NormalizeRetry computes the retry cycle for a rejected admission: always
// strictly after now, so callers never busy-loop at the same cycle on the
// same node.
func NormalizeRetry(now Cycle, candidate Cycle) Cycle {
	floor := now + 1
	if candidate > floor {
		return candidate
	}
	return floor
}
