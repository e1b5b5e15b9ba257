package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"classroll/internal/attendance"
	"classroll/internal/httpmiddleware"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeExpired    = "session_expired"
	CodeInternal   = "internal_error"
)

// statusFor maps coordinator errors onto HTTP statuses and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, attendance.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, attendance.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, attendance.ErrSessionExpired):
		return http.StatusGone, CodeExpired
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// fail writes err as a JSON error body. Internal errors are logged and
// their detail withheld from the client.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", httpmiddleware.GetRequestID(c)).
			Str("path", c.FullPath()).
			Msg("request failed")
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeValidation})
}
