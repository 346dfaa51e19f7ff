package handler

import (
	"net/http"
	"strconv"

	"mailflow/internal/middleware"
	"mailflow/internal/rbac"
	"mailflow/pkg/apperror"
	"mailflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// writeError maps a service error onto the response envelope. Unexpected
// errors are attached to the context for the request logger.
func writeError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, response.Error(status, err.Error()))
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid "+param))
		return 0, false
	}
	return uint(id), true
}

func mustActor(c *gin.Context) (rbac.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
	}
	return actor, ok
}
