package repositories

import (
	"errors"

	"storefront/internal/models"
)

// ErrStockConflict is returned by DecrementStockIfAvailable when the product
// exists but does not have enough stock for the requested quantity.
var ErrStockConflict = errors.New("insufficient stock")

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ProductRepository defines the interface for product data access.
//
// DecrementStockIfAvailable and IncrementStock are the only operations that
// may mutate a product's stock. Stock is never changed via read-then-write.
type ProductRepository interface {
	GetAll() ([]models.Product, error)
	GetByID(id string) (*models.Product, error)
	GetByIDs(ids []string) ([]models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Delete(id string) error

	// DecrementStockIfAvailable atomically subtracts quantity from the
	// product's stock only if the current stock covers it, and returns the
	// post-decrement product. It returns ErrStockConflict when stock is
	// insufficient and ErrNotFound when the product does not exist.
	DecrementStockIfAvailable(id string, quantity int) (*models.Product, error)

	// IncrementStock unconditionally adds quantity back to the product's
	// stock. Used to reverse a prior decrement on cancellation or payment
	// failure.
	IncrementStock(id string, quantity int) error
}
