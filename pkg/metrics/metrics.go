// Package metrics exposes Prometheus collectors for registry and
// notification activity.
//
// A nil *Metrics is valid and records nothing, so components can hold one
// unconditionally.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a notification was not emitted.
const (
	ReasonSuppressed = "suppressed"
	ReasonFiltered   = "filtered"
	ReasonTooLarge   = "too_large"
	ReasonDuplicate  = "duplicate"
	ReasonInvalid    = "invalid"
	ReasonSink       = "sink"
)

// Metrics holds the collectors.
type Metrics struct {
	events           *prometheus.CounterVec
	skipped          *prometheus.CounterVec
	rejected         *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	operations       *prometheus.CounterVec
	nodes            prometheus.Gauge
	seqnum           prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objreg_uevents_total",
				Help: "Total number of notifications handed to the delivery sink by action",
			},
			[]string{"action"},
		),
		skipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objreg_uevents_skipped_total",
				Help: "Total number of notifications silently skipped by reason",
			},
			[]string{"reason"}, // "suppressed", "filtered"
		),
		rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objreg_uevents_rejected_total",
				Help: "Total number of notifications rejected with an error by reason",
			},
			[]string{"reason"}, // "too_large", "duplicate", "invalid", "sink"
		),
		deliveryFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objreg_uevent_delivery_failures_total",
				Help: "Total number of failed notification deliveries by action",
			},
			[]string{"action"},
		),
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objreg_hierarchy_operations_total",
				Help: "Total number of structural registry operations by operation and result",
			},
			[]string{"op", "result"}, // result: "ok", "error"
		),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Name: "objreg_nodes_registered",
			Help: "Number of nodes currently registered",
		}),
		seqnum: f.NewGauge(prometheus.GaugeOpts{
			Name: "objreg_uevent_seqnum",
			Help: "Most recently assigned notification sequence number",
		}),
	}
}

// RecordEvent records a notification handed to the sink.
func (m *Metrics) RecordEvent(action string, seqnum uint64) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(action).Inc()
	m.seqnum.Set(float64(seqnum))
}

// RecordSkipped records a notification that was silently not emitted.
func (m *Metrics) RecordSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

// RecordRejected records a notification that failed with an error.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// RecordDeliveryFailure records a failed delivery.
func (m *Metrics) RecordDeliveryFailure(action string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(action).Inc()
}

// RecordOperation records the outcome of a structural operation.
func (m *Metrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// NodeRegistered increments the registered node gauge.
func (m *Metrics) NodeRegistered() {
	if m == nil {
		return
	}
	m.nodes.Inc()
}

// NodeUnregistered decrements the registered node gauge.
func (m *Metrics) NodeUnregistered() {
	if m == nil {
		return
	}
	m.nodes.Dec()
}
