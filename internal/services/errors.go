package services

import (
	"errors"
	"fmt"
)

// Business errors returned by the order and payment services. Handlers map
// these to HTTP statuses; none of them are retried inside the services.
var (
	ErrInvalidInput          = errors.New("invalid order input")
	ErrProductNotFound       = errors.New("product not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrNotAuthorized         = errors.New("not authorized for this order")
	ErrAlreadyCancelled      = errors.New("order is already cancelled")
	ErrCannotCancelDelivered = errors.New("delivered orders cannot be cancelled")
	ErrAlreadyPaid           = errors.New("order is already paid")
	ErrWrongPaymentMethod    = errors.New("order is not an online payment")
	ErrOrderMismatch         = errors.New("gateway order id does not match")
	ErrInvalidSignature      = errors.New("payment signature verification failed")
	ErrInvalidStatus         = errors.New("invalid order status transition")
	ErrDuplicateRequest      = errors.New("an identical request is already in progress")

	// ErrTransactionAborted marks infrastructure-level failures during
	// placement. The attempt has been fully unwound; the caller may retry
	// the whole operation from scratch.
	ErrTransactionAborted = errors.New("order transaction aborted")
)

// Authentication errors.
var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailRegistered    = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// InsufficientStockError identifies which product ran out during placement.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}
