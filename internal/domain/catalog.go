package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category группирует товары каталога.
type Category struct {
	ID        string
	Name      string
	Image     string
	CreatedAt time.Time
}

// Validate проверяет обязательные поля категории.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("name", "is required")
	}
	return nil
}

// Product — товарная позиция каталога с остатком на складе.
type Product struct {
	ID                   string
	CategoryID           string
	Name                 string
	Details              string
	Image                string
	Price                decimal.Decimal
	WholesalePrice       decimal.Decimal
	MinimumOrderQuantity int32
	StockQuantity        int32
	IsInStock            bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RefreshStockFlag пересчитывает признак наличия по остатку.
// Вызывается при каждом сохранении товара.
func (p *Product) RefreshStockFlag() {
	p.IsInStock = p.StockQuantity > 0
}

// Validate проверяет инварианты товара.
func (p Product) Validate() error {
	switch {
	case strings.TrimSpace(p.CategoryID) == "":
		return NewValidationError("category_id", "is required")
	case strings.TrimSpace(p.Name) == "":
		return NewValidationError("product_name", "is required")
	case p.Price.IsNegative():
		return NewValidationError("price", "must not be negative")
	case p.WholesalePrice.IsNegative():
		return NewValidationError("wholesale_price", "must not be negative")
	case p.MinimumOrderQuantity < 0:
		return NewValidationError("minimum_order_quantity", "must not be negative")
	case p.StockQuantity < 0:
		return NewValidationError("stock_quantity", "must not be negative")
	}
	return nil
}

// Offer — описательная акция, на расчёт цены не влияет.
type Offer struct {
	ID                        string
	Title                     string
	Description               string
	DiscountPercentage        decimal.Decimal
	ApplicableMinimumQuantity int32
	Image                     string
	CreatedAt                 time.Time
}

var hundred = decimal.NewFromInt(100)

// Validate проверяет диапазон скидки и минимального количества.
func (o Offer) Validate() error {
	switch {
	case strings.TrimSpace(o.Title) == "":
		return NewValidationError("title", "is required")
	case o.DiscountPercentage.IsNegative() || o.DiscountPercentage.GreaterThan(hundred):
		return NewValidationError("discount_percentage", "must be between 0 and 100")
	case o.ApplicableMinimumQuantity < 0:
		return NewValidationError("applicable_minimum_quantity", "must not be negative")
	}
	return nil
}
