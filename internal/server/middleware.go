package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	HeaderEventType     = "X-Event-Type"
	contextEventTypeKey = "event_type"

	maxNotificationBytes int64 = 1 << 20
)

// LimitBody caps the request body at limit bytes.
func LimitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
