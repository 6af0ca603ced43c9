package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordEvent("add", 1)
	m.RecordEvent("add", 2)
	m.RecordEvent("remove", 3)
	m.RecordSkipped(ReasonFiltered)
	m.RecordRejected(ReasonDuplicate)
	m.RecordDeliveryFailure("add")
	m.RecordOperation("add", nil)
	m.RecordOperation("add", errors.New("dup"))
	m.NodeRegistered()
	m.NodeRegistered()
	m.NodeUnregistered()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("remove")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.seqnum))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues(ReasonFiltered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues(ReasonDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveryFailures.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("add", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodes))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordEvent("add", 1)
		m.RecordSkipped(ReasonSuppressed)
		m.RecordRejected(ReasonTooLarge)
		m.RecordDeliveryFailure("add")
		m.RecordOperation("rm", nil)
		m.NodeRegistered()
		m.NodeUnregistered()
	})
}
