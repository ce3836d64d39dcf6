package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "share.create.end"),
		attribute.String("resource_id", "r1"),
		attribute.String("outcome", "processed"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("event_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordNotification(context.Background(), "share.create.end", "processed")
	m.RecordOrder(context.Background(), "share", "created")
	m.RecordMasterEvent(context.Background(), "created", "delivered")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "waiter"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordNotification(context.Background(), "share.create.end", "processed")
}
