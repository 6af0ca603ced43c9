package uevent

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Deliverer hands a finished message to an external consumer.
// Implementations must be safe for concurrent use.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, msg Message) error

// Deliver calls f(ctx, msg).
func (f DelivererFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Multi delivers to every Deliverer in order and joins their errors.
type Multi []Deliverer

// Deliver sends msg to all deliverers, continuing past failures.
func (m Multi) Deliver(ctx context.Context, msg Message) error {
	var errs []error
	for _, d := range m {
		if err := d.Deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrorHandler receives delivery failures. It must not block.
type ErrorHandler func(msg Message, err error)

// Sink accepts finished messages. Submit is called with the sequencer lock
// held, so it only queues the message; delivery happens after the lock is
// released.
type Sink interface {
	Submit(msg Message) error
}

// Inline delivers on the notifying goroutines instead of a background one.
// Submit queues the message and Drain delivers the queue in submission
// order. Only one goroutine drains at a time: a Drain that finds another in
// progress returns at once and leaves its messages to that goroutine, so a
// Deliverer may emit further notifications without deadlocking.
// Delivery errors go to OnError and Submit itself never fails.
type Inline struct {
	Deliverer Deliverer
	OnError   ErrorHandler

	// Timeout bounds each delivery. Zero means no timeout.
	Timeout time.Duration

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Message
	draining bool
}

// Submit queues msg for the next Drain.
func (s *Inline) Submit(msg Message) error {
	if s.Deliverer == nil {
		return nil
	}
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	return nil
}

// Drain delivers queued messages until the queue is empty. It must be
// called without the sequencer lock held.
func (s *Inline) Drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		msg := s.queue[0]
		s.queue[0] = Message{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(msg)

		s.mu.Lock()
	}
	s.draining = false
	if s.cond != nil {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// Flush waits until no message is queued or being delivered. It must not
// be called from a Deliverer.
func (s *Inline) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
	}
	for len(s.queue) > 0 || s.draining {
		s.cond.Wait()
	}
}

func (s *Inline) deliver(msg Message) {
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	if err := s.Deliverer.Deliver(ctx, msg); err != nil && s.OnError != nil {
		s.OnError(msg, err)
	}
}

// Discard drops every message.
type Discard struct{}

// Submit does nothing.
func (Discard) Submit(Message) error { return nil }

// Compile-time interface satisfaction checks.
var (
	_ Deliverer = DelivererFunc(nil)
	_ Deliverer = Multi(nil)
	_ Sink      = (*Inline)(nil)
	_ Sink      = Discard{}
)
