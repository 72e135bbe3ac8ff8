package handler

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/vhvplatform/go-notification-engine/internal/shared/errors"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
)

// respondError writes err as an AppError JSON body; internal details are logged, not returned
func respondError(c *gin.Context, log *logger.Logger, err error) {
	appErr := apperrors.AsAppError(err)
	status := appErr.HTTPStatus()
	if status >= 500 {
		log.Error("Request failed", "error", err, "path", c.FullPath(), "method", c.Request.Method)
	}
	c.JSON(status, gin.H{
		"code":  appErr.Code,
		"error": appErr.Message,
	})
}
