package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/waiter/internal/event"
	obscontext "github.com/smallbiznis/waiter/internal/observability/context"
)

type recreateResourceRequest struct {
	ResourceID  string `json:"resource_id" binding:"required,notblank"`
	DisplayName string `json:"display_name"`
	Size        int64  `json:"size" binding:"gte=0"`
	UserID      string `json:"user_id" binding:"required,notblank"`
	ProjectID   string `json:"project_id" binding:"required,notblank"`
	State       string `json:"state" binding:"required,notblank"`
	ActionTime  string `json:"action_time"`
}

// RecreateResource opens an order in an explicit state, for resources whose
// create notification was lost. A resource with a live order is returned as is.
func (s *Server) RecreateResource(c *gin.Context) {
	controller, ok := s.controllers.Get(c.Param("family"))
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}

	var req recreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	req.State = strings.TrimSpace(req.State)

	res := event.Resource{
		ID:        req.ResourceID,
		Name:      strings.TrimSpace(req.DisplayName),
		Type:      controller.ResourceType(),
		Volume:    req.Size,
		UserID:    strings.TrimSpace(req.UserID),
		ProjectID: strings.TrimSpace(req.ProjectID),
	}
	at, _ := event.ParseTimestamp(req.ActionTime, s.clock.Now())

	ctx := obscontext.WithResource(c.Request.Context(), controller.Family(), res.ID)
	order, err := controller.Create(ctx, at, res, req.State)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}
