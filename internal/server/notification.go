package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/waiter/internal/notification"
)

type ingestResponse struct {
	Result notification.Result `json:"result"`
}

// IngestNotification applies one notification envelope. Only failures the
// sender should retry answer 503; malformed or inapplicable events answer 422.
func (s *Server) IngestNotification(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, newValidationError("body", "invalid_body", "request body unreadable"))
		return
	}
	if len(raw) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	eventType := strings.TrimSpace(c.GetHeader(HeaderEventType))
	c.Set(contextEventTypeKey, eventTypeForLog(eventType, raw))

	result, err := s.dispatcher.Dispatch(c.Request.Context(), eventType, raw)
	switch result {
	case notification.ResultFailed:
		if err != nil {
			_ = c.Error(err)
		}
		c.JSON(http.StatusServiceUnavailable, ingestResponse{Result: result})
	case notification.ResultDropped:
		c.JSON(http.StatusUnprocessableEntity, ingestResponse{Result: result})
	default:
		c.JSON(http.StatusAccepted, ingestResponse{Result: result})
	}
}

func eventTypeForLog(header string, raw []byte) string {
	if header != "" {
		return header
	}
	var head struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return strings.TrimSpace(head.EventType)
}
