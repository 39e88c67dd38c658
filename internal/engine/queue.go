package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/formsync/internal/ir"
)

// Dispatcher is what a Loop feeds. *Coordinator implements it, and so does
// session.Session, which also applies queued field changes.
type Dispatcher interface {
	Emit(ev ir.Event) error
}

// eventQueue is an unbounded thread-safe FIFO of events.
//
// The signal channel (buffered, size 1) lets Run wait with select so context
// cancellation is never blocked behind an empty queue.
type eventQueue struct {
	mu     sync.Mutex
	events []ir.Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]ir.Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends e. Returns false if the queue is closed.
func (q *eventQueue) enqueue(e ir.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue pops the front event without blocking.
func (q *eventQueue) tryDequeue() (ir.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return ir.Event{}, false
	}
	e := q.events[0]
	q.events[0] = ir.Event{} // Release the payload for GC
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// drained reports whether the queue is closed and empty.
func (q *eventQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// close stops further enqueues and wakes the waiter.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Loop serializes emits from many goroutines onto one Dispatcher.
//
// Thread-safety model:
//   - Emit(), Stop(), Len(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// Loop implements field.Emitter, so a session can be hosted on it.
type Loop struct {
	target    Dispatcher
	queue     *eventQueue
	logger    *slog.Logger
	onError   func(ir.Event, error)
	processed atomic.Int64
	failed    atomic.Int64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the loop's logger. Default: slog.Default().
func WithLoopLogger(l *slog.Logger) LoopOption {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithErrorHandler is called from the Run goroutine for every failed dispatch.
func WithErrorHandler(fn func(ir.Event, error)) LoopOption {
	return func(lp *Loop) {
		lp.onError = fn
	}
}

// NewLoop creates a loop feeding target.
func NewLoop(target Dispatcher, opts ...LoopOption) *Loop {
	l := &Loop{
		target: target,
		queue:  newEventQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Emit enqueues ev for the Run goroutine. Returns ErrLoopClosed after Stop.
func (l *Loop) Emit(ev ir.Event) error {
	if !l.queue.enqueue(ev) {
		return ErrLoopClosed
	}
	return nil
}

// Run dispatches queued events in FIFO order until ctx is cancelled or Stop
// is called and the queue has drained.
//
// A failed dispatch is logged with its event and processing continues with
// the next event; retrying would make the session history differ from
// what a replay produces.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("event loop starting")

	for {
		if ev, ok := l.queue.tryDequeue(); ok {
			l.dispatch(ev)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("event loop stopping: context cancelled")
			l.queue.close()
			return ctx.Err()
		case <-l.queue.signal:
			// A coalesced signal can arrive for an event already taken,
			// so only a closed, empty queue ends the loop.
			if l.queue.drained() {
				l.logger.Info("event loop stopping: closed")
				return nil
			}
		}
	}
}

func (l *Loop) dispatch(ev ir.Event) {
	err := l.target.Emit(ev)
	l.processed.Add(1)
	if err == nil {
		return
	}
	l.failed.Add(1)
	l.logger.Error("dispatch failed",
		"kind", ev.Kind,
		"source", ev.Source,
		"payload", ir.TypeName(ev.Payload),
		"error", err,
	)
	if l.onError != nil {
		l.onError(ev, err)
	}
}

// Stop closes the queue. Run returns once queued events are dispatched.
func (l *Loop) Stop() {
	l.queue.close()
}

// Len returns the number of queued events.
func (l *Loop) Len() int {
	return l.queue.len()
}

// Processed returns the number of events dispatched so far.
func (l *Loop) Processed() int64 {
	return l.processed.Load()
}

// Failed returns the number of dispatches that returned an error.
func (l *Loop) Failed() int64 {
	return l.failed.Load()
}
