package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrConnection):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrDatabase):
		// An unconfigured database is a server fault, not a bad request.
		return http.StatusInternalServerError
	case errors.Is(err, apperr.ErrInvalid), errors.Is(err, apperr.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("route", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"status": "error", "detail": detail})
}

func (h *Handler) invalid(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.fail(c, err)
		return
	}
	h.fail(c, fmt.Errorf("%w: %v", apperr.ErrInvalid, err))
}

func success(c *gin.Context, extra gin.H) {
	body := gin.H{"status": "success"}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
