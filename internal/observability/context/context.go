package context

import (
	stdcontext "context"
	"strings"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	messageIDKey  contextKey = "message_id"
	eventTypeKey  contextKey = "event_type"
	resourceIDKey contextKey = "resource_id"
	familyKey     contextKey = "family"
)

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	return withValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	return valueFrom(ctx, requestIDKey)
}

// WithMessageID stores the upstream notification message id.
func WithMessageID(ctx stdcontext.Context, messageID string) stdcontext.Context {
	return withValue(ctx, messageIDKey, messageID)
}

func MessageIDFromContext(ctx stdcontext.Context) string {
	return valueFrom(ctx, messageIDKey)
}

func WithEventType(ctx stdcontext.Context, eventType string) stdcontext.Context {
	return withValue(ctx, eventTypeKey, eventType)
}

func EventTypeFromContext(ctx stdcontext.Context) string {
	return valueFrom(ctx, eventTypeKey)
}

// WithResource stores the resource family and id being processed.
func WithResource(ctx stdcontext.Context, family, resourceID string) stdcontext.Context {
	ctx = withValue(ctx, familyKey, family)
	return withValue(ctx, resourceIDKey, resourceID)
}

func ResourceFromContext(ctx stdcontext.Context) (string, string) {
	return valueFrom(ctx, familyKey), valueFrom(ctx, resourceIDKey)
}

func withValue(ctx stdcontext.Context, key contextKey, value string) stdcontext.Context {
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, key, value)
}

func valueFrom(ctx stdcontext.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
