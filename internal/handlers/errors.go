package handlers

import (
	"errors"
	"fmt"

	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// statusForError maps service errors to HTTP statuses. Unknown errors are
// treated as internal.
func statusForError(err error) int {
	var stockErr *services.InsufficientStockError
	switch {
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInvalidSignature):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrOrderNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrNotAuthorized):
		return fiber.StatusForbidden
	case errors.As(err, &stockErr),
		errors.Is(err, services.ErrAlreadyCancelled),
		errors.Is(err, services.ErrCannotCancelDelivered),
		errors.Is(err, services.ErrAlreadyPaid),
		errors.Is(err, services.ErrWrongPaymentMethod),
		errors.Is(err, services.ErrOrderMismatch),
		errors.Is(err, services.ErrInvalidStatus):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrDuplicateRequest):
		return fiber.StatusTooManyRequests
	case errors.Is(err, services.ErrTransactionAborted):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// validationError renders validator failures field by field.
func validationError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"error":   err.Error(),
		})
	}
	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errorMessages,
	})
}

// serviceError renders a service error as JSON with the mapped status.
func serviceError(c *fiber.Ctx, err error, message string) error {
	status := statusForError(err)
	if errors.Is(err, services.ErrTransactionAborted) {
		message = "Please try again"
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}
