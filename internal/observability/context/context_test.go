package context

import (
	stdcontext "context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := stdcontext.Background()
	ctx = WithMessageID(ctx, " msg-1 ")
	ctx = WithEventType(ctx, "share.create.end")
	ctx = WithResource(ctx, "share", "r1")
	ctx = WithRequestID(ctx, "")

	assert.Equal(t, "msg-1", MessageIDFromContext(ctx))
	assert.Equal(t, "share.create.end", EventTypeFromContext(ctx))
	family, id := ResourceFromContext(ctx)
	assert.Equal(t, "share", family)
	assert.Equal(t, "r1", id)
	assert.Empty(t, RequestIDFromContext(ctx))
}
