package handler

import (
	"net/http"
	"strconv"
	"time"

	"mailflow/internal/middleware"
	"mailflow/internal/rbac"
	"mailflow/internal/service"
	"mailflow/pkg/pagination"
	"mailflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type HistoryHandler struct {
	history service.HistoryService
	guard   *rbac.PermissionGuard
}

func NewHistoryHandler(history service.HistoryService, guard *rbac.PermissionGuard) *HistoryHandler {
	return &HistoryHandler{history: history, guard: guard}
}

func (h *HistoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/history", middleware.RequirePermission(h.guard, "history.read"), h.List)
}

// List returns the global mail history
// @Summary      Global mail history
// @Tags         history
// @Security     BearerAuth
// @Produce      json
// @Param        mail_id  query  int     false  "Mail ID"
// @Param        user_id  query  int     false  "Acting user ID"
// @Param        action   query  string  false  "Action contains"
// @Param        from     query  string  false  "From (RFC3339)"
// @Param        to       query  string  false  "To (RFC3339)"
// @Param        page     query  int     false  "Page number (default 1)"
// @Param        limit    query  int     false  "Items per page (default 20)"
// @Success      200      {object}  response.Response{data=object}
// @Router       /api/history [get]
func (h *HistoryHandler) List(c *gin.Context) {
	p := pagination.Parse(c)
	query := service.HistoryQuery{Action: c.Query("action"), Page: p.Page, Limit: p.Limit}

	var ok bool
	if query.MailID, ok = optionalUint(c, "mail_id"); !ok {
		return
	}
	if query.UserID, ok = optionalUint(c, "user_id"); !ok {
		return
	}
	if query.From, ok = optionalTime(c, "from"); !ok {
		return
	}
	if query.To, ok = optionalTime(c, "to"); !ok {
		return
	}

	entries, total, err := h.history.ListHistory(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"history": entries,
		"total":   total,
		"page":    p.Page,
		"limit":   p.Limit,
	}))
}

func optionalUint(c *gin.Context, key string) (*uint, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid "+key))
		return nil, false
	}
	id := uint(v)
	return &id, true
}

func optionalTime(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid "+key+" format, expected RFC3339"))
		return nil, false
	}
	return &t, true
}
