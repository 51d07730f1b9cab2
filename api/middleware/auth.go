package middleware

import (
	"net/http"
	"strings"

	"messenger/services"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// AuthMiddleware - аутентификация запросов.
// Поддерживает два варианта:
// 1. Authorization: Bearer <jwt> (subject - id пользователя)
// 2. X-User-ID заголовок, только если allowHeader (локальная разработка и тесты)
func AuthMiddleware(verifier services.IdentityVerifier, allowHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowHeader {
			if userID := c.GetHeader("X-User-ID"); userID != "" {
				if err := services.ValidateUserID(userID); err != nil {
					c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid X-User-ID format"})
					return
				}
				c.Set(userIDKey, userID)
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		userID, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID возвращает id аутентифицированного пользователя
func UserID(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	return userID, userID != ""
}
