package handler

import (
	"net/http"

	"mailflow/internal/middleware"
	"mailflow/internal/rbac"
	"mailflow/internal/service"
	"mailflow/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserService
	guard       *rbac.PermissionGuard
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService, guard *rbac.PermissionGuard) *UserHandler {
	return &UserHandler{userService: userService, guard: guard}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/me", h.GetMe)

	admin := router.Group("/api/admin/users")
	{
		admin.PATCH("/:id/role", middleware.RequirePermission(h.guard, "users.manage"), h.ChangeRole)
	}
}

// GetMe returns the authenticated actor and its permission codes
// @Summary      Current user
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	svc, _ := rbac.ExpectedService(actor.RoleID)

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"id":          actor.ID,
		"username":    actor.Username,
		"role_id":     actor.RoleID,
		"role":        actor.RoleName(),
		"service":     svc,
		"permissions": h.guard.Policy().Codes(actor.RoleName()),
	}))
}

// ChangeRole reassigns a user's role
// @Summary      Change user role
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                        true  "User ID"
// @Param        payload  body      service.ChangeRoleRequest  true  "New role"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/admin/users/{id}/role [patch]
func (h *UserHandler) ChangeRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req service.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	user, err := h.userService.ChangeRole(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}
