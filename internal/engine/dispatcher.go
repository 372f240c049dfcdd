package engine

import (
	"context"
	"sync"
	"time"
)

// Dispatcher owns one unbounded FIFO queue of OutputEvents per session. The
// producer side (the pipeline task) never blocks; the consumer side pulls a
// stream that ends after a terminal event. Each queue is single-producer /
// single-consumer, so the per-queue mutex only guards append vs. drain.
type Dispatcher struct {
	mu     sync.Mutex
	queues map[string]*sessionQueue
}

type sessionQueue struct {
	mu      sync.Mutex
	items   []OutputEvent
	nextSeq int64
	notify  chan struct{}
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{queues: make(map[string]*sessionQueue)}
}

func (d *Dispatcher) queue(sessionID string) *sessionQueue {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[sessionID]
	if !ok {
		q = &sessionQueue{notify: make(chan struct{}, 1)}
		d.queues[sessionID] = q
	}
	return q
}

// Enqueue appends one event to the session's queue, assigning sequence and
// timestamp. It never blocks.
func (d *Dispatcher) Enqueue(sessionID string, event OutputEvent) OutputEvent {
	q := d.queue(sessionID)

	q.mu.Lock()
	q.nextSeq++
	event.Seq = q.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	q.items = append(q.items, event)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return event
}

// Pending reports how many events are queued but not yet drained.
func (d *Dispatcher) Pending(sessionID string) int {
	q := d.queue(sessionID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain returns a pull channel for one task's event stream. Events arrive in
// enqueue order; the channel is closed after a terminal event has been
// delivered, or when ctx is done. Events enqueued while earlier ones are
// still being delivered are appended, never reordered. Events not delivered
// by this drain (tail after a terminal event, or remainder on ctx done) are
// put back for the next one.
func (d *Dispatcher) Drain(ctx context.Context, sessionID string) <-chan OutputEvent {
	q := d.queue(sessionID)
	out := make(chan OutputEvent)

	go func() {
		defer close(out)
		for {
			q.mu.Lock()
			batch := q.items
			q.items = nil
			q.mu.Unlock()

			for i, event := range batch {
				select {
				case out <- event:
				case <-ctx.Done():
					d.requeue(q, batch[i:])
					return
				}
				if event.Terminal() {
					d.requeue(q, batch[i+1:])
					return
				}
			}

			select {
			case <-q.notify:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// requeue puts back the undelivered tail of a batch so a later consumer sees
// every event at least once.
func (d *Dispatcher) requeue(q *sessionQueue, tail []OutputEvent) {
	if len(tail) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(append([]OutputEvent(nil), tail...), q.items...)
	q.mu.Unlock()
}

// Forget drops a session's queue, releasing retained events.
func (d *Dispatcher) Forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.queues, sessionID)
}
