package utils

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tlu-support/internal/models"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
	ctxClaims = "claims"
)

// TokenBlacklist reports whether a key (a revoked token id) is present.
type TokenBlacklist interface {
	Exists(ctx context.Context, key string) bool
}

// AuthMiddleware validates the bearer token and puts the caller identity into the context.
// The token is read from the Authorization header, or from the "token" query parameter
// for websocket upgrades where browsers cannot set headers.
func AuthMiddleware(jwtUtil *JWTUtil, blacklist TokenBlacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			abortUnauthorized(c, "authorization header required")
			return
		}

		claims, err := jwtUtil.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		if claims.JTI != "" && blacklist != nil && blacklist.Exists(c.Request.Context(), BlacklistKey(claims.JTI)) {
			abortUnauthorized(c, "token revoked")
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// RequireRoles lets the request through only when the caller has one of the roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody("role not found", models.ErrForbidden))
			return
		}

		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, errorBody("access denied", models.ErrForbidden))
	}
}

func GetPrincipal(c *gin.Context) models.Principal {
	return models.Principal{
		UserID: c.GetString(ctxUserID),
		Role:   models.Role(c.GetString(ctxRole)),
	}
}

func GetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

func tokenFromRequest(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(msg, models.ErrUnauthorized))
}
