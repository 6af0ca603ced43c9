package uevent

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDispatcherClosed is returned by Submit after Close.
var ErrDispatcherClosed = errors.New("uevent: dispatcher closed")

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// OnError receives delivery failures.
	OnError ErrorHandler

	// Timeout bounds each delivery. Zero means no timeout.
	Timeout time.Duration
}

// Dispatcher queues messages and delivers them in submission order on a
// single background goroutine, so a slow consumer never blocks the
// notifying caller.
type Dispatcher struct {
	deliverer Deliverer
	config    DispatcherConfig

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Message
	inflight bool
	closed   bool

	done chan struct{}
}

// NewDispatcher starts a Dispatcher delivering to d.
func NewDispatcher(d Deliverer, config DispatcherConfig) *Dispatcher {
	q := &Dispatcher{
		deliverer: d,
		config:    config,
		done:      make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Submit queues msg. It never blocks on delivery.
func (q *Dispatcher) Submit(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrDispatcherClosed
	}
	q.queue = append(q.queue, msg)
	q.cond.Broadcast()
	return nil
}

// Pending returns the number of queued and in-flight messages.
func (q *Dispatcher) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.queue)
	if q.inflight {
		n++
	}
	return n
}

// Flush waits until every message submitted so far has been delivered.
func (q *Dispatcher) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.queue) > 0 || q.inflight {
		q.cond.Wait()
	}
}

// Close stops accepting messages, delivers what is queued and stops the
// delivery goroutine. It is safe to call Close multiple times.
func (q *Dispatcher) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
	<-q.done
	return nil
}

func (q *Dispatcher) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.queue) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.queue) == 0 {
			q.mu.Unlock()
			return
		}
		msg := q.queue[0]
		q.queue[0] = Message{}
		q.queue = q.queue[1:]
		q.inflight = true
		q.mu.Unlock()

		q.deliver(msg)

		q.mu.Lock()
		q.inflight = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

func (q *Dispatcher) deliver(msg Message) {
	ctx := context.Background()
	if q.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.config.Timeout)
		defer cancel()
	}
	if err := q.deliverer.Deliver(ctx, msg); err != nil && q.config.OnError != nil {
		q.config.OnError(msg, err)
	}
}

// Compile-time interface satisfaction check.
var _ Sink = (*Dispatcher)(nil)
