package input

import "sync/atomic"

// DefaultQueueDepth is the queue capacity when none is configured.
const DefaultQueueDepth = 10

// Queue is a bounded FIFO of events. Push never blocks: when full the
// new event is dropped.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64
	logger  Logger
}

// NewQueue creates a queue holding up to depth events.
func NewQueue(depth int) *Queue {
	if depth < 1 {
		depth = DefaultQueueDepth
	}
	return &Queue{
		ch:     make(chan Event, depth),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for overflow warnings.
func (q *Queue) SetLogger(l Logger) {
	q.logger = l
}

// Push enqueues ev and reports whether it was accepted.
func (q *Queue) Push(ev Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		n := q.dropped.Add(1)
		q.logger.Warn("input queue full, event dropped",
			"event", ev.Name(),
			"capacity", cap(q.ch),
			"dropped_total", n,
		)
		return false
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped returns the number of events dropped since start.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// C exposes the receive side to the worker.
func (q *Queue) C() <-chan Event { return q.ch }
