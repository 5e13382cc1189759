// internal/middleware/i18n.go
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aetflow/aet-backend/internal/i18n"
)

// I18nMiddleware stores the negotiated locale (pt_BR or en) under "lang".
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", i18n.ParseAcceptLanguage(c.GetHeader("Accept-Language")))
		c.Next()
	}
}
