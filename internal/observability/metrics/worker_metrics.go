package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonDB                   = "db"
	ReasonUnknown              = "unknown"
)

const (
	ConsumerResultAcked    = "acked"
	ConsumerResultRetained = "retained"
	ConsumerResultRetried  = "retried"
	ConsumerResultInvalid  = "invalid"

	RelayResultDelivered = "delivered"
	RelayResultRetried   = "retried"
	RelayResultAbandoned = "abandoned"
)

// WorkerMetrics tracks the background loops: lock contention, stream
// consumption and master relay throughput.
type WorkerMetrics struct {
	lockWait         *prometheus.HistogramVec
	lockTimeouts     *prometheus.CounterVec
	consumerMessages *prometheus.CounterVec
	relayProcessed   *prometheus.CounterVec
	relayErrors      *prometheus.CounterVec
	relayBacklog     prometheus.Gauge
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

func Worker() *WorkerMetrics {
	return WorkerWithConfig(Config{})
}

func WorkerWithConfig(cfg Config) *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = newWorkerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workerMetrics
}

func newWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "waiter"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "waiter_resource_lock_wait_seconds",
		Help:        "Time spent waiting for the per-resource lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"family"})
	lockTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "waiter_resource_lock_timeouts_total",
		Help:        "Per-resource lock acquisitions abandoned by context cancellation.",
		ConstLabels: constLabels,
	}, []string{"family"})
	consumerMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "waiter_consumer_messages_total",
		Help:        "Stream messages consumed by result.",
		ConstLabels: constLabels,
	}, []string{"stream", "result"})
	relayProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "waiter_relay_processed_total",
		Help:        "Outbox rows handled by the master relay.",
		ConstLabels: constLabels,
	}, []string{"result"})
	relayErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "waiter_relay_errors_total",
		Help:        "Master relay errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	relayBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "waiter_relay_batch_size",
		Help:        "Unpublished outbox rows claimed by the last relay poll.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		lockWait,
		lockTimeouts,
		consumerMessages,
		relayProcessed,
		relayErrors,
		relayBacklog,
	)

	return &WorkerMetrics{
		lockWait:         lockWait,
		lockTimeouts:     lockTimeouts,
		consumerMessages: consumerMessages,
		relayProcessed:   relayProcessed,
		relayErrors:      relayErrors,
		relayBacklog:     relayBacklog,
	}
}

func (m *WorkerMetrics) ObserveLockWait(family string, duration time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(family).Observe(duration.Seconds())
}

func (m *WorkerMetrics) IncLockTimeout(family string) {
	if m == nil {
		return
	}
	m.lockTimeouts.WithLabelValues(family).Inc()
}

func (m *WorkerMetrics) IncConsumerMessage(stream, result string) {
	if m == nil {
		return
	}
	m.consumerMessages.WithLabelValues(stream, result).Inc()
}

func (m *WorkerMetrics) AddRelayProcessed(result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.relayProcessed.WithLabelValues(result).Add(float64(count))
}

func (m *WorkerMetrics) IncRelayError(err error) {
	if m == nil {
		return
	}
	m.relayErrors.WithLabelValues(ClassifyReason(err)).Inc()
}

func (m *WorkerMetrics) SetRelayBatch(size int) {
	if m == nil {
		return
	}
	m.relayBacklog.Set(float64(size))
}

// ClassifyReason maps errors to low-cardinality reasons.
func ClassifyReason(err error) string {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReasonDeadlineExceeded
	}
	if isDBLockTimeout(err) {
		return ReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return ReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return ReasonUniqueViolation
	}
	if IsDBError(err) {
		return ReasonDB
	}
	return ReasonUnknown
}

// IsRetryable reports whether the failure is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBLockTimeout(err) || isSerializationFailure(err)
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001") || hasPGCode(err, "40P01")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

// IsDBError reports whether err originates from gorm or the postgres driver.
func IsDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
