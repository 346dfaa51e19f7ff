package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"mailflow/internal/rbac"
	"mailflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// Claims are the access token claims issued by the identity service.
type Claims struct {
	Username string `json:"username"`
	RoleID   int    `json:"role_id"`
	jwt.RegisteredClaims
}

var errMissingToken = errors.New("authorization is missing")

// ParseActor validates an HS256 access token and returns the actor it names.
func ParseActor(tokenString string, secret []byte) (rbac.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return rbac.Actor{}, err
	}
	if !token.Valid {
		return rbac.Actor{}, jwt.ErrTokenInvalidClaims
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return rbac.Actor{}, errors.New("token subject is not a user id")
	}
	return rbac.Actor{ID: uint(id), Username: claims.Username, RoleID: claims.RoleID}, nil
}

// tokenFromRequest reads the access_token cookie, falling back to the
// Authorization header.
func tokenFromRequest(c *gin.Context) (string, error) {
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token, nil
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization format. Expected 'Bearer <token>'")
	}
	return parts[1], nil
}

// RequireAuth validates the JWT and stores the actor on the context
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}

		actor, err := ParseActor(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}
		actor.ClientIP = c.ClientIP()
		actor.UserAgent = c.Request.UserAgent()

		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequirePermission checks a permission code for the authenticated actor.
// Denials are audited by the guard. Must run after RequireAuth.
func RequirePermission(guard *rbac.PermissionGuard, code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, errMissingToken.Error()))
			return
		}

		if err := guard.Check(c.Request.Context(), actor, code); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
			return
		}
		c.Next()
	}
}

// ActorFrom returns the actor set by RequireAuth
func ActorFrom(c *gin.Context) (rbac.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return rbac.Actor{}, false
	}
	actor, ok := v.(rbac.Actor)
	return actor, ok
}
