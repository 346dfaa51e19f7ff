package handler

import (
	"net/http"

	"mailflow/internal/middleware"
	"mailflow/internal/rbac"
	"mailflow/internal/service"
	"mailflow/pkg/pagination"
	"mailflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	guard        *rbac.PermissionGuard
}

func NewAuditHandler(auditService service.AuditService, guard *rbac.PermissionGuard) *AuditHandler {
	return &AuditHandler{auditService: auditService, guard: guard}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit-logs")
	group.Use(middleware.RequirePermission(h.guard, "audit.read"))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs lists security events newest first
// @Summary      Get audit logs
// @Description  Lists security events such as permission denials
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action    query     string  false  "Action"
// @Param        severity  query     string  false  "Severity"
// @Param        user_id   query     int     false  "User ID"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Number of items per page (default 20)"
// @Success      200       {object}  response.Response{data=object}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	userID, ok := optionalUint(c, "user_id")
	if !ok {
		return
	}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), service.AuditQuery{
		Action:   c.Query("action"),
		Severity: c.Query("severity"),
		UserID:   userID,
		Page:     p.Page,
		Limit:    p.Limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to retrieve audit logs: "+err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"total": total,
		"page":  p.Page,
		"limit": p.Limit,
	}))
}
