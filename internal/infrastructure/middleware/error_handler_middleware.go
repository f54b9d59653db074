package middleware

import (
	stderrors "errors"
	"net/http"

	"desklink/internal/core/domain"
	"desklink/pkg/errors"
	pkglogger "desklink/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware maps errors attached to the gin context onto
// structured HTTP responses. Log entries pick up the request's trace
// ids when the tracing middleware runs ahead of this one.
func ErrorHandlerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	ctxLogger := pkglogger.NewContextLogger(base)
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		logger := ctxLogger.WithContext(c.Request.Context())

		if appErr := errors.GetAppError(err); appErr != nil {
			logger.Errorw("application error",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"context", appErr.Context,
			)
			c.JSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
				"details": appErr.Context,
			})
			return
		}

		if status, code := domainStatus(err); status != 0 {
			logger.Warnw("request failed",
				"error", err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.JSON(status, gin.H{
				"error":   code,
				"message": err.Error(),
			})
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   string(errors.ErrCodeInternal),
			"message": "Internal server error",
		})
	}
}

// domainStatus maps domain sentinel errors onto HTTP statuses. Zero
// means the error is not a recognized domain error.
func domainStatus(err error) (int, string) {
	switch {
	case stderrors.Is(err, domain.ErrLinkNotFound),
		stderrors.Is(err, domain.ErrParticipantNotFound),
		stderrors.Is(err, domain.ErrSessionNotFound),
		stderrors.Is(err, domain.ErrTransferNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case stderrors.Is(err, domain.ErrUnknownPreset),
		stderrors.Is(err, domain.ErrMalformedFrame),
		stderrors.Is(err, domain.ErrUnknownMessageType),
		stderrors.Is(err, domain.ErrSelfConnection):
		return http.StatusBadRequest, "INVALID_INPUT"
	case stderrors.Is(err, domain.ErrControlDisabled),
		stderrors.Is(err, domain.ErrClipboardDisabled):
		return http.StatusForbidden, "FORBIDDEN"
	case stderrors.Is(err, domain.ErrChannelNotOpen),
		stderrors.Is(err, domain.ErrLinkClosed),
		stderrors.Is(err, domain.ErrManagerClosed),
		stderrors.Is(err, domain.ErrSignalingClosed):
		return http.StatusConflict, "LINK_UNAVAILABLE"
	}
	return 0, ""
}

// RecoveryMiddleware converts panics into 500 responses.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
