package response

import (
	"errors"

	"salesquota-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps a domain error to its HTTP status and client message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		return fiber.StatusBadRequest, "Quota exceeded"
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidSource),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrDateClosed):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable, "Quota storage unavailable, retry later"
	case errors.Is(err, domain.ErrReconciliationRequired):
		return fiber.StatusAccepted, "Order flagged for quota reconciliation, retry the request"
	case errors.Is(err, domain.ErrOrderCancelled),
		errors.Is(err, domain.ErrReservationReleased),
		errors.Is(err, domain.ErrConcurrentUpdate):
		return fiber.StatusConflict, err.Error()
	}
	return fiber.StatusInternalServerError, "Internal Server Error"
}

// DomainError writes err in the standard error format. Quota rejections carry
// product_id, requested and remaining so the client can resubmit.
func DomainError(c *fiber.Ctx, err error) error {
	code, message := StatusFor(err)
	var details interface{}
	var qe *domain.QuotaExceededError
	if errors.As(err, &qe) {
		details = fiber.Map{
			"product_id": qe.Key.ProductID,
			"date":       qe.Key.Date,
			"requested":  qe.Requested,
			"remaining":  qe.Remaining,
		}
	}
	if code >= fiber.StatusInternalServerError {
		// rendered by the global error handler so it is logged once
		return err
	}
	return Error(c, message, code, details)
}
