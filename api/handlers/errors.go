package handlers

import (
	"errors"
	"net/http"

	"messenger/logger"
	"messenger/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor сопоставляет класс ошибки сервиса с HTTP статусом
func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindConversationMismatch:
		return http.StatusConflict
	case services.KindUnauthenticated:
		return http.StatusUnauthorized
	case services.KindAuthorization:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError отдаёт ошибку клиенту. Внутренние ошибки не раскрываем
func respondError(c *gin.Context, operation string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Log.Error("messaging operation failed",
			zap.String("operation", operation),
			zap.Error(err))
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "try again"})
		return
	}

	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		c.JSON(status, gin.H{"error": svcErr.Msg, "kind": svcErr.Kind})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
