package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "abc")
	ctx, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "abc", cid)
	assert.Equal(t, "abc", ExtractCorrelationID(ctx))

	_, generated := EnsureCorrelationID(context.Background())
	assert.Len(t, generated, 26)
}

func TestMetadataRoundTrip(t *testing.T) {
	traceID := "4bf92f3577b34da6a3ce929d0e0e4736"
	spanID := "00f067aa0ba902b7"

	ctx := ContextWithCorrelationID(context.Background(), "cid-1")
	ctx = ContextWithRemoteSpan(ctx, traceID, spanID)

	meta := Metadata(ctx)
	assert.Equal(t, "cid-1", meta["correlation_id"])
	assert.Equal(t, traceID, meta["trace_id"])

	restored := ContextFromMetadata(context.Background(), meta)
	assert.Equal(t, "cid-1", ExtractCorrelationID(restored))
	sc := trace.SpanContextFromContext(restored)
	assert.True(t, sc.IsRemote())
	assert.Equal(t, spanID, sc.SpanID().String())
}

func TestContextWithRemoteSpanIgnoresGarbage(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "zz", "yy")
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}
