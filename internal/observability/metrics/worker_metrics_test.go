package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "serialization_failure", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), want: ReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: ReasonUniqueViolation},
		{name: "db", err: gorm.ErrInvalidTransaction, want: ReasonDB},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyReason(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsRetryable(gorm.ErrDuplicatedKey))
	assert.False(t, IsRetryable(nil))
}

func TestWorkerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newWorkerMetrics(registry, Config{ServiceName: "waiter", Environment: "test"})

	m.AddRelayProcessed(RelayResultDelivered, 3)
	m.AddRelayProcessed(RelayResultDelivered, 0)
	m.IncConsumerMessage("manila.notifications.info", ConsumerResultAcked)
	m.IncRelayError(context.DeadlineExceeded)
	m.ObserveLockWait("share", 10*time.Millisecond)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.relayProcessed.WithLabelValues(RelayResultDelivered)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.consumerMessages.WithLabelValues("manila.notifications.info", ConsumerResultAcked)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.relayErrors.WithLabelValues(ReasonDeadlineExceeded)))
}
