package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"residence/internal/models"
	"residence/internal/service"
)

// Auth resolves the caller from the session cookie, falling back to an
// Authorization: Bearer token.
func Auth(svc service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var u *models.User
		var err error
		if tok, _ := c.Cookie("session_token"); tok != "" {
			u, err = svc.CurrentUser(c.Request.Context(), tok)
		} else if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
			u, err = svc.BearerUser(c.Request.Context(), strings.TrimSpace(bearer))
		} else {
			err = service.NewUnauthorized("not logged in")
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in", "errorCode": service.CodeUnauthorized})
			return
		}
		c.Set("user", u)
		c.Next()
	}
}
