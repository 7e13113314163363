// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package trace carries the structured event stream every cache mutation
// emits. Emission from the hot path is synchronous and
// lossless from the producer's point of view; the consumer is expected to be
// non-blocking, so the Sink here is a bounded queue that drops the oldest
// entry rather than ever stall a commit.
package trace

import (
	"sync/atomic"

	"github.com/luxfi/ammcore/types"
	log "github.com/luxfi/log"
)

// Event is one structured trace record.
type Event struct {
	Kind         types.EventKind
	Key          types.AccountKey
	Slot         uint64
	WriteSeq     uint64
	Source       types.Source
	Outcome      types.Outcome
	Reason       string
	ExistingSlot uint64 // only meaningful when Outcome == Stale
}

// Sink receives trace events. Implementations must never block the caller.
type Sink interface {
	Emit(Event)
}

// DiscardSink drops every event. Useful in tests and as the zero-value
// default so a *cache.* or *commit.* value never needs a nil check.
type DiscardSink struct{}

// Emit implements Sink.
func (DiscardSink) Emit(Event) {}

// BoundedQueue is a non-blocking, drop-oldest trace sink intended for the
// evidence-capture collaborator to drain from a separate goroutine.
type BoundedQueue struct {
	ch    chan Event
	drops atomic.Uint64
}

// NewBoundedQueue creates a queue with room for capacity pending events.
func NewBoundedQueue(capacity int) *BoundedQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &BoundedQueue{
		ch: make(chan Event, capacity),
	}
}

// Emit implements Sink. If the queue is full the oldest pending event is
// dropped to make room — the core never blocks on trace consumption.
func (q *BoundedQueue) Emit(e Event) {
	select {
	case q.ch <- e:
		return
	default:
	}
	select {
	case <-q.ch:
		q.drops.Add(1)
		log.Warn("trace queue full, dropping oldest event", "kind", e.Kind.String())
	default:
	}
	select {
	case q.ch <- e:
	default:
	}
}

// Drain returns a channel the evidence-capture collaborator can range over.
func (q *BoundedQueue) Drain() <-chan Event {
	return q.ch
}

// Drops returns the number of events dropped for capacity since creation.
func (q *BoundedQueue) Drops() uint64 {
	return q.drops.Load()
}
