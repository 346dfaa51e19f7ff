package handler

import (
	"net/http"

	"mailflow/internal/service"
	"mailflow/pkg/pagination"
	"mailflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifications service.NotificationService
}

func NewNotificationHandler(notifications service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/notifications", h.List)
}

// List returns the caller's notifications, newest first
// @Summary      My notifications
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        page   query  int  false  "Page number (default 1)"
// @Param        limit  query  int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	items, total, err := h.notifications.ListForUser(c.Request.Context(), actor.ID, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"notifications": items,
		"total":         total,
		"page":          p.Page,
		"limit":         p.Limit,
	}))
}
