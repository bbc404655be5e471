package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"courier-dispatch/internal/dispatch/app/core"
)

const requestIDKey = "request_id"

// RequestID attaches an id to every request, taking the caller's
// X-Request-ID when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// ErrorHandler maps sentinel errors raised by handlers onto status codes,
// so handlers can just c.Error(err) and return.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, core.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, core.ErrNotOwner):
			status = http.StatusForbidden
		case errors.Is(err, core.ErrOrderNotFound), errors.Is(err, core.ErrUserNotFound):
			status = http.StatusNotFound
		case errors.Is(err, core.ErrInvalidTransition):
			status = http.StatusConflict
		}

		c.AbortWithStatusJSON(status, gin.H{
			"error":      err.Error(),
			"request_id": c.GetString(requestIDKey),
		})
	}
}
