package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus primitives for notification handling and
// master deliveries.
type Metrics struct {
	handlerDuration  *prometheus.HistogramVec
	handlerErrors    *prometheus.CounterVec
	masterDeliveries *prometheus.CounterVec
	masterDuration   *prometheus.HistogramVec
	orderPrice       *prometheus.HistogramVec
}

// NewMetrics registers and returns Prometheus metrics on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "waiter_event_handler_duration_seconds",
		Help:    "Notification handler durations by event type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type", "status"})

	handlerErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "waiter_event_handler_errors_total",
		Help: "Counts notification handler failures by event type.",
	}, []string{"event_type"})

	masterDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "waiter_master_delivery_total",
		Help: "Master notification delivery outcomes.",
	}, []string{"status"})

	masterDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "waiter_master_delivery_duration_seconds",
		Help:    "Master notification roundtrip latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	orderPrice := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "waiter_order_unit_price",
		Help:    "Order unit price distribution per family.",
		Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 100, 1000},
	}, []string{"family"})

	registerer.MustRegister(
		handlerDuration,
		handlerErrors,
		masterDeliveries,
		masterDuration,
		orderPrice,
	)

	return &Metrics{
		handlerDuration:  handlerDuration,
		handlerErrors:    handlerErrors,
		masterDeliveries: masterDeliveries,
		masterDuration:   masterDuration,
		orderPrice:       orderPrice,
	}
}

// RecordHandler observes handler invocations.
func (m *Metrics) RecordHandler(eventType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	eventLabel := sanitizeLabel(eventType)
	m.handlerDuration.WithLabelValues(eventLabel, sanitizeLabel(status)).Observe(duration.Seconds())
	if status == "failed" {
		m.handlerErrors.WithLabelValues(eventLabel).Inc()
	}
}

// RecordMasterDelivery records one delivery attempt to the billing master.
func (m *Metrics) RecordMasterDelivery(action, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.masterDeliveries.WithLabelValues(sanitizeLabel(status)).Inc()
	m.masterDuration.WithLabelValues(sanitizeLabel(action)).Observe(duration.Seconds())
}

// ObserveOrderPrice records the unit price assigned to an order.
func (m *Metrics) ObserveOrderPrice(family string, price float64) {
	if m == nil {
		return
	}
	m.orderPrice.WithLabelValues(sanitizeLabel(family)).Observe(price)
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
