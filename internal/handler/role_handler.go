package handler

import (
	"net/http"
	"sort"

	"mailflow/internal/middleware"
	"mailflow/internal/rbac"
	"mailflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	guard *rbac.PermissionGuard
}

func NewRoleHandler(guard *rbac.PermissionGuard) *RoleHandler {
	return &RoleHandler{guard: guard}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	roles := router.Group("/api/roles")
	roles.Use(middleware.RequirePermission(h.guard, "users.manage"))
	{
		roles.GET("", h.ListRoles)
	}
}

type RoleResponse struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Service     string   `json:"service,omitempty"`
	Permissions []string `json:"permissions"`
}

// @Summary      List roles
// @Description  Lists the fixed roles with their service and loaded permission codes
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]RoleResponse}
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	res := make([]RoleResponse, 0, rbac.RoleCount)
	for id := 1; id <= rbac.RoleCount; id++ {
		name := rbac.RoleName(id)
		svc, _ := rbac.ExpectedService(id)
		codes := h.guard.Policy().Codes(name)
		sort.Strings(codes)
		res = append(res, RoleResponse{ID: id, Name: name, Service: svc, Permissions: codes})
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
