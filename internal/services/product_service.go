package services

import (
	"fmt"

	"storefront/internal/models"
	"storefront/internal/repositories"
)

// ProductService handles business logic related to catalog products.
type ProductService struct {
	repo repositories.ProductRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{
		repo: repo,
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts() ([]models.Product, error) {
	return s.repo.GetAll()
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(id string) (*models.Product, error) {
	return s.repo.GetByID(id)
}

// CreateProduct creates a new product.
func (s *ProductService) CreateProduct(product *models.Product) error {
	if err := validateDiscount(product); err != nil {
		return err
	}
	return s.repo.Create(product)
}

// UpdateProduct updates an existing product.
func (s *ProductService) UpdateProduct(product *models.Product) error {
	if err := validateDiscount(product); err != nil {
		return err
	}
	return s.repo.Update(product)
}

// DeleteProduct deletes a product by its ID.
func (s *ProductService) DeleteProduct(id string) error {
	return s.repo.Delete(id)
}

// validateDiscount rejects discount prices that would never take effect.
func validateDiscount(product *models.Product) error {
	if product.DiscountPrice != nil && *product.DiscountPrice >= product.Price {
		return fmt.Errorf("%w: discount price must be lower than list price", ErrInvalidInput)
	}
	return nil
}
