package models

import "gorm.io/gorm"

// Product represents a product in the store catalog.
type Product struct {
	ID            string   `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Name          string   `json:"name" validate:"required,min=3,max=100"`
	Description   string   `json:"description" validate:"omitempty,max=500"`
	Price         float64  `json:"price" validate:"required,gt=0"`
	DiscountPrice *float64 `json:"discount_price,omitempty" validate:"omitempty,gt=0"`
	Stock         int      `json:"stock" validate:"gte=0"`
	gorm.Model             // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}

// EffectivePrice returns the discounted unit price if one is set and lower
// than the list price, otherwise the list price.
func (p *Product) EffectivePrice() float64 {
	if p.DiscountPrice != nil && *p.DiscountPrice < p.Price {
		return *p.DiscountPrice
	}
	return p.Price
}
