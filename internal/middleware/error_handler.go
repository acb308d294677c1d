package middleware

import (
	"errors"

	"salesquota-backend/internal/domain"
	"salesquota-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorHandler is the global error handler. Returns the standard error format.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := StatusFromError(err)
	message := "Internal Server Error"
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		message = fe.Message
	case code == fiber.StatusServiceUnavailable:
		message = "Quota storage unavailable, retry later"
	}
	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Int("status", code).Msg("Unhandled error")
	}
	return response.Error(c, message, code, map[string]interface{}{})
}

// StatusFromError is the status the error handler will answer with for err.
func StatusFromError(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
