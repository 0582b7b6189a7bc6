package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"residence/internal/models"
	"residence/internal/service"
)

func Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get("user")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in", "errorCode": service.CodeUnauthorized})
			return
		}
		if u := v.(*models.User); !u.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only", "errorCode": service.CodeForbidden})
			return
		}
		c.Next()
	}
}
