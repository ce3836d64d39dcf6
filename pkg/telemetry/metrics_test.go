package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHandlerCountsFailures(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordHandler("share.create.end", "processed", time.Millisecond)
	m.RecordHandler("share.create.end", "failed", time.Millisecond)
	m.RecordHandler("", "failed", time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.handlerErrors.WithLabelValues("share.create.end")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.handlerErrors.WithLabelValues("unknown")))
}

func TestRecordMasterDelivery(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordMasterDelivery("created", "delivered", 10*time.Millisecond)
	m.RecordMasterDelivery("created", "delivered", 10*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.masterDeliveries.WithLabelValues("delivered")))
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.RecordHandler("x", "failed", 0)
	m.RecordMasterDelivery("x", "y", 0)
	m.ObserveOrderPrice("share", 1)
}
