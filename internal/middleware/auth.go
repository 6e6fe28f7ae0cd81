package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"medconnect-backend/pkg/jwt"
	"medconnect-backend/pkg/response"
)

// RevocationChecker answers whether a token has been blacklisted.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
}

// AuthMiddleware validates the bearer token issued by the portal's
// auth service and stores the caller's identity in the gin context as
// user_id, display_name and role. revocationChecker may be nil; when
// the check errors the request proceeds, since signature validation
// already passed and tokens are short-lived.
func AuthMiddleware(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}
		tokenString := parts[1]

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}
		if !claims.HasAudience(jwt.Audience) {
			response.Unauthorized(c, "Invalid token audience")
			c.Abort()
			return
		}

		if revocationChecker != nil {
			revoked, err := revocationChecker.IsTokenRevoked(c.Request.Context(), tokenString)
			if err == nil && revoked {
				response.Unauthorized(c, "Token revoked")
				c.Abort()
				return
			}
		}

		c.Set("user_id", claims.UserID)
		c.Set("display_name", claims.DisplayName)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireRole restricts a route to users whose token carries one of the
// given roles. Must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get("role")
		if !exists {
			response.Unauthorized(c, "Not authenticated")
			c.Abort()
			return
		}

		role, _ := roleVal.(string)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		response.Forbidden(c, "Insufficient role")
		c.Abort()
	}
}
