package handler

import (
	"net/http"

	"mailflow/internal/middleware"
	"mailflow/internal/rbac"
	"mailflow/internal/service"
	"mailflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type WorkflowStatsHandler struct {
	statsService service.WorkflowStatsService
	guard        *rbac.PermissionGuard
}

func NewWorkflowStatsHandler(statsService service.WorkflowStatsService, guard *rbac.PermissionGuard) *WorkflowStatsHandler {
	return &WorkflowStatsHandler{statsService: statsService, guard: guard}
}

func (h *WorkflowStatsHandler) RegisterRoutes(router *gin.RouterGroup) {
	statsGroup := router.Group("/api/workflow")
	{
		statsGroup.GET("/kpi", middleware.RequirePermission(h.guard, "dashboard.read"), h.GetKPI)
	}
}

// @Summary      Workflow KPI
// @Description  Counts by status and service, average cycle durations in days and archive rate
// @Tags         Statistics
// @Produce      json
// @Param        start_date query string false "Start Date (RFC3339)"
// @Param        end_date   query string false "End Date (RFC3339)"
// @Success      200 {object} response.Response{data=model.WorkflowKPI}
// @Failure      400 {object} response.Response "Invalid date format"
// @Failure      403 {object} response.Response "Missing permission"
// @Security     BearerAuth
// @Router       /api/workflow/kpi [get]
func (h *WorkflowStatsHandler) GetKPI(c *gin.Context) {
	from, ok := optionalTime(c, "start_date")
	if !ok {
		return
	}
	to, ok := optionalTime(c, "end_date")
	if !ok {
		return
	}

	kpi, err := h.statsService.GetKPI(c.Request.Context(), service.KPIFilter{From: from, To: to})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, kpi))
}
