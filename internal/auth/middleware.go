package auth

import (
	"net/http"
	"strings"

	"github.com/KevinKickass/CorrectorMux/internal/types"
	"github.com/gin-gonic/gin"
)

const (
	usernameKey = "username"
	roleKey     = "role"
)

// Middleware validates the bearer token and stores user and role in the
// gin context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "missing authorization header", nil))
			return
		}

		// "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "invalid authorization header format", nil))
			return
		}

		claims, err := s.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "invalid or expired token", nil))
			return
		}

		c.Set(usernameKey, claims.Subject)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// RequireRole rejects requests whose role does not allow required.
func RequireRole(required Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(roleKey)
		r, _ := role.(Role)
		if !r.Allows(required) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse(types.CodeForbidden, "insufficient permissions", map[string]interface{}{
					"required": string(required),
				}))
			return
		}
		c.Next()
	}
}

// Actor returns the authenticated user name of the request.
func Actor(c *gin.Context) string {
	return c.GetString(usernameKey)
}
