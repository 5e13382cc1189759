// internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aetflow/aet-backend/internal/i18n"
	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/utils"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}

	// Extract token from "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func setClaims(c *gin.Context, claims *utils.JWTClaims) {
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("role", claims.Role)
	c.Set("transporter_cnpj", claims.TransporterCNPJ)
}

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		if c.GetHeader("Authorization") == "" {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthRequired))
			c.Abort()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(token)
		if err != nil {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthTokenExpired))
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := utils.GetUserRoleFromContext(c)
		if !exists || role != string(models.UserRoleAdmin) {
			utils.ForbiddenResponse(c, "")
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth sets the caller's claims when a valid token is present and
// never rejects the request.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		if claims, err := utils.ValidateJWT(token); err == nil {
			setClaims(c, claims)
		}
		c.Next()
	}
}
