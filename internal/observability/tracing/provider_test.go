package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

func TestSafeAttributesDropsTenantIdentity(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("user_id", "u1"),
		attribute.String("http.route", "/v1/notifications"),
		attribute.String("project_id", "p1"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorFlattensChain(t *testing.T) {
	base := errors.New("db down")
	err := SafeError(fmt.Errorf("create order: %w", base))
	assert.EqualError(t, err, "create order: db down")
	assert.False(t, errors.Is(err, base))
	assert.Nil(t, SafeError(nil))
}

func TestDisabledProviderPropagatesContext(t *testing.T) {
	tp, err := NewProvider(nil, Config{ServiceName: "waiter", SamplingRatio: 1}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "dispatch")
	defer span.End()

	header := http.Header{}
	InjectContext(ctx, propagation.HeaderCarrier(header))
	assert.NotEmpty(t, header.Get("traceparent"))

	extracted := ExtractContext(context.Background(), propagation.HeaderCarrier(header))
	assert.NotNil(t, extracted)
}
