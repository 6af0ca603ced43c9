package kobject

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	objlog "github.com/mash-protocol/objreg/pkg/log"
	"github.com/mash-protocol/objreg/pkg/metrics"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// NotifierConfig configures a Notifier.
type NotifierConfig struct {
	// Sequencer assigns SEQNUM. Nil creates a fresh one starting at 1.
	Sequencer *uevent.Sequencer

	// Deliverer receives finished messages. Nil discards them.
	Deliverer uevent.Deliverer

	// Async queues messages for delivery on a background goroutine.
	Async bool

	// Timeout bounds each delivery. Zero means no timeout.
	Timeout time.Duration

	// Limits bounds every message. Zero fields use the defaults.
	Limits uevent.Limits

	// RegistryID tags event log records.
	RegistryID string

	// Logger for operational logging. If nil, logging is disabled.
	Logger *slog.Logger

	// EventLog records delivery failures. If nil, nothing is recorded.
	EventLog objlog.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Notifier builds, sequences and hands off lifecycle notifications.
type Notifier struct {
	seq        *uevent.Sequencer
	sink       uevent.Sink
	inline     *uevent.Inline
	dispatcher *uevent.Dispatcher
	limits     uevent.Limits
	registryID string
	logger     *slog.Logger
	events     objlog.Logger
	metrics    *metrics.Metrics
}

// NewNotifier creates a Notifier.
func NewNotifier(config NotifierConfig) *Notifier {
	e := &Notifier{
		seq:        config.Sequencer,
		limits:     config.Limits,
		registryID: config.RegistryID,
		logger:     config.Logger,
		events:     config.EventLog,
		metrics:    config.Metrics,
	}
	if e.seq == nil {
		e.seq = uevent.NewSequencer(0)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.events == nil {
		e.events = objlog.NoopLogger{}
	}

	switch {
	case config.Deliverer == nil:
		e.sink = uevent.Discard{}
	case config.Async:
		e.dispatcher = uevent.NewDispatcher(config.Deliverer, uevent.DispatcherConfig{
			OnError: e.DeliveryFailed,
			Timeout: config.Timeout,
		})
		e.sink = e.dispatcher
	default:
		e.inline = &uevent.Inline{
			Deliverer: config.Deliverer,
			OnError:   e.DeliveryFailed,
			Timeout:   config.Timeout,
		}
		e.sink = e.inline
	}
	return e
}

// Sequencer returns the sequencer in use.
func (e *Notifier) Sequencer() *uevent.Sequencer { return e.seq }

// Flush waits until every queued message has been delivered. It must not
// be called from a Deliverer.
func (e *Notifier) Flush() {
	switch {
	case e.dispatcher != nil:
		e.dispatcher.Flush()
	case e.inline != nil:
		e.inline.Flush()
	}
}

// Close delivers queued messages and stops the background goroutine.
func (e *Notifier) Close() error {
	if e.dispatcher != nil {
		return e.dispatcher.Close()
	}
	return nil
}

// DeliveryFailed reports a delivery failure on the observability channel.
// It is installed as the sink's error handler.
func (e *Notifier) DeliveryFailed(msg uevent.Message, err error) {
	e.logger.Warn("notification delivery failed",
		"seqnum", msg.Seqnum,
		"action", msg.Action.String(),
		"devpath", msg.DevPath(),
		"error", err)
	e.metrics.RecordDeliveryFailure(msg.Action.String())
	e.events.Log(objlog.Event{
		Timestamp:  time.Now(),
		RegistryID: e.registryID,
		Category:   objlog.CategoryError,
		Error: &objlog.ErrorEvent{
			Op:      "deliver",
			Path:    msg.DevPath(),
			Message: err.Error(),
			Seqnum:  msg.Seqnum,
		},
	})
}

// reportFailure records a notification that a structural operation could
// not emit. The operation itself still succeeds.
func (e *Notifier) reportFailure(op, path string, err error) {
	e.logger.Warn("notification failed", "op", op, "path", path, "error", err)
	e.events.Log(objlog.Event{
		Timestamp:  time.Now(),
		RegistryID: e.registryID,
		Category:   objlog.CategoryError,
		Error:      &objlog.ErrorEvent{Op: op, Path: path, Message: err.Error()},
	})
}

// request is a notification resolved against the hierarchy.
type request struct {
	node   *Node
	action uevent.Action
	path   string
	group  *Group
	extra  []string
}

// emit runs the notification algorithm for req and delivers the result.
// It returns zero when the node is suppressed or filtered. Errors from the
// sink are reported and swallowed.
func (e *Notifier) emit(req request) (uint64, error) {
	req.node.emitMu.Lock()
	seq, err := e.emitLocked(req)
	req.node.emitMu.Unlock()
	e.drain()
	return seq, err
}

// retire announces REMOVE for a node leaving the hierarchy. REMOVE is only
// sent if ADD was, so listeners never see a removal they did not see
// added, and nothing else is sent for the node afterwards.
func (e *Notifier) retire(req request) (uint64, error) {
	n := req.node
	n.emitMu.Lock()
	var seq uint64
	var err error
	if n.retire() {
		seq, err = e.emitLocked(req)
	}
	n.emitMu.Unlock()
	e.drain()
	return seq, err
}

// drain delivers what the inline sink queued. It runs with no lock held.
func (e *Notifier) drain() {
	if e.inline != nil {
		e.inline.Drain()
	}
}

// emitLocked claims, builds and numbers a notification. The caller holds
// the node's emit lock from before the claim until the message has its
// sequence number, so a node's notifications are numbered in claim order.
func (e *Notifier) emitLocked(req request) (uint64, error) {
	n := req.node
	if n.EventsSuppressed() {
		e.metrics.RecordSkipped(metrics.ReasonSuppressed)
		return 0, nil
	}

	var policy *Policy
	if req.group != nil {
		policy = req.group.policy
	}
	if policy != nil && policy.Filter != nil && !policy.Filter(n) {
		e.metrics.RecordSkipped(metrics.ReasonFiltered)
		return 0, nil
	}

	undo, err := n.claimEvent(req.action)
	if err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			e.metrics.RecordRejected(metrics.ReasonDuplicate)
		} else {
			e.metrics.RecordRejected(metrics.ReasonInvalid)
		}
		return 0, err
	}

	env, err := e.build(req, policy)
	if err != nil {
		undo()
		e.reject(err)
		return 0, fmt.Errorf("kobject: %s %s: %w", req.action, req.path, err)
	}

	seq, err := e.seq.Assign(req.action, env, e.sink.Submit)
	switch {
	case err == nil:
	case errors.Is(err, uevent.ErrTooLarge):
		undo()
		e.reject(err)
		return 0, fmt.Errorf("kobject: %s %s: %w", req.action, req.path, err)
	default:
		// Nothing was handed off, so the event may be tried again.
		undo()
		e.metrics.RecordRejected(metrics.ReasonSink)
		e.reportFailure("submit", req.path, err)
		return 0, nil
	}

	e.metrics.RecordEvent(req.action.String(), seq)
	e.logger.Debug("notification",
		"seqnum", seq,
		"action", req.action.String(),
		"devpath", req.path)
	return seq, nil
}

func (e *Notifier) build(req request, policy *Policy) (*uevent.Env, error) {
	subsystem := EscapeName(req.node.Name())
	if policy != nil && policy.Name != nil {
		if s := policy.Name(req.node); s != "" {
			subsystem = s
		}
	}

	env := uevent.NewEnv(e.limits)
	if err := env.Add(uevent.KeyAction, req.action.String()); err != nil {
		return nil, err
	}
	if err := env.Add(uevent.KeyDevPath, req.path); err != nil {
		return nil, err
	}
	if err := env.Add(uevent.KeySubsystem, subsystem); err != nil {
		return nil, err
	}
	for _, kv := range req.extra {
		if err := env.AddVar(kv); err != nil {
			return nil, err
		}
	}
	if policy != nil && policy.Augment != nil {
		if err := policy.Augment(req.node, env); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func (e *Notifier) reject(err error) {
	switch {
	case errors.Is(err, uevent.ErrTooLarge):
		e.metrics.RecordRejected(metrics.ReasonTooLarge)
	default:
		e.metrics.RecordRejected(metrics.ReasonInvalid)
	}
}
