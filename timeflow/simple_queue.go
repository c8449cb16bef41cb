package timeflow

import "github.com/gputfe/tfe/timeq"

// Reject mirrors the source's central Reject type: a retry hint plus reason,
// shared by every thin stage wrapper in the stages package.
type Reject struct {
	RetryAt timeq.Cycle
	Reason  timeq.RejectReason
}

// RejectWith additionally carries back the rejected payload, so a caller
// doesn't need to have cloned it defensively before the attempt.
type RejectWith[T any] struct {
	RetryAt timeq.Cycle
	Reason  timeq.RejectReason
	Payload T
}

// SimpleTimedQueue bypasses its underlying TimedServer entirely when
// disabled, returning a synthetic zero-cost ticket instead. This is the
// building block every auxiliary stage (icache, operand fetch, writeback,
// DMA, fence) is built from (spec.md §4.5).
type SimpleTimedQueue[T any] struct {
	enabled bool
	server  *timeq.TimedServer[T]
}

// NewSimpleTimedQueue constructs a queue; when enabled is false, TryIssue
// always succeeds immediately and Tick is a no-op.
func NewSimpleTimedQueue[T any](enabled bool, cfg timeq.ServerConfig) *SimpleTimedQueue[T] {
	return &SimpleTimedQueue[T]{enabled: enabled, server: timeq.NewTimedServer[T](cfg)}
}

func (q *SimpleTimedQueue[T]) IsEnabled() bool { return q.enabled }

// TryIssue admits payload, returning a Reject (without the payload) on
// backpressure.
func (q *SimpleTimedQueue[T]) TryIssue(now timeq.Cycle, payload T, bytes uint32) (timeq.Ticket, *Reject) {
	ticket, withPayload := q.TryIssueWithPayload(now, payload, bytes)
	if withPayload == nil {
		return ticket, nil
	}
	return ticket, &Reject{RetryAt: withPayload.RetryAt, Reason: withPayload.Reason}
}

// TryIssueWithPayload admits payload, returning the rejected payload back to
// the caller on backpressure so it can be requeued without a prior clone.
func (q *SimpleTimedQueue[T]) TryIssueWithPayload(now timeq.Cycle, payload T, bytes uint32) (timeq.Ticket, *RejectWith[T]) {
	if !q.enabled {
		return timeq.SyntheticTicket(now, bytes), nil
	}
	ticket, bp := q.server.TryEnqueue(now, timeq.NewServiceRequest(payload, bytes))
	if bp == nil {
		return ticket, nil
	}
	switch bp.Reason {
	case timeq.Busy:
		return timeq.Ticket{}, &RejectWith[T]{
			RetryAt: timeq.NormalizeRetry(now, bp.AvailableAt),
			Reason:  timeq.Busy,
			Payload: bp.Request.Payload,
		}
	default:
		retryAt := q.server.AvailableAt()
		if oldest, ok := q.server.OldestTicket(); ok {
			retryAt = oldest.ReadyAt
		}
		return timeq.Ticket{}, &RejectWith[T]{
			RetryAt: timeq.NormalizeRetry(now, retryAt),
			Reason:  timeq.QueueFull,
			Payload: bp.Request.Payload,
		}
	}
}

// Tick drains ready completions to onReady; a no-op while disabled.
func (q *SimpleTimedQueue[T]) Tick(now timeq.Cycle, onReady func(T)) {
	if !q.enabled {
		return
	}
	q.server.ServiceReady(now, func(r timeq.ServiceResult[T]) {
		onReady(r.Payload)
	})
}

// Server exposes the backing station for callers that need direct access
// (e.g. MSHR admission wants to share the same rate-limiting primitive).
func (q *SimpleTimedQueue[T]) Server() *timeq.TimedServer[T] {
	return q.server
}
