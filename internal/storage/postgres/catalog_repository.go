package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

type categoryRepo struct{ tx *pgTx }

func (r categoryRepo) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	category.CreatedAt = nowUTC()

	_, err := r.tx.q.ExecContext(ctx, `
		INSERT INTO categories (id, name, image, created_at)
		VALUES ($1,$2,$3,$4)
	`, category.ID, category.Name, category.Image, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Category{}, domain.ErrDuplicate
		}
		return domain.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return category, nil
}

func (r categoryRepo) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	category, err := scanCategory(r.tx.q.QueryRowContext(ctx, `
		SELECT id, name, image, created_at FROM categories WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("get category: %w", err)
	}
	return category, nil
}

func (r categoryRepo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.tx.q.QueryContext(ctx, `
		SELECT id, name, image, created_at FROM categories ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		result = append(result, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return result, nil
}

func (r categoryRepo) UpdateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	res, err := r.tx.q.ExecContext(ctx, `
		UPDATE categories SET name = $2, image = $3 WHERE id = $1
	`, category.ID, category.Name, category.Image)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Category{}, domain.ErrDuplicate
		}
		return domain.Category{}, fmt.Errorf("update category: %w", err)
	}
	if err := affectedOne(res, domain.ErrCategoryNotFound); err != nil {
		return domain.Category{}, err
	}
	return r.GetCategory(ctx, category.ID)
}

// DeleteCategory опирается на ON DELETE CASCADE для товаров и их позиций в заказах.
func (r categoryRepo) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.tx.q.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return affectedOne(res, domain.ErrCategoryNotFound)
}

func scanCategory(row rowScanner) (domain.Category, error) {
	var category domain.Category
	err := row.Scan(&category.ID, &category.Name, &category.Image, &category.CreatedAt)
	return category, err
}

const productColumns = `id, category_id, product_name, product_details, image, price, wholesale_price,
	minimum_order_quantity, stock_quantity, is_in_stock, created_at, updated_at`

type productRepo struct{ tx *pgTx }

func (r productRepo) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := nowUTC()
	product.CreatedAt, product.UpdatedAt = now, now
	product.RefreshStockFlag()

	_, err := r.tx.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		product.ID, product.CategoryID, product.Name, product.Details, product.Image,
		product.Price, product.WholesalePrice, product.MinimumOrderQuantity,
		product.StockQuantity, product.IsInStock, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return domain.Product{}, domain.ErrCategoryNotFound
		case isUniqueViolation(err):
			return domain.Product{}, domain.ErrDuplicate
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

func (r productRepo) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := scanProduct(r.tx.q.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func (r productRepo) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	rows, err := r.tx.q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR category_id = $1)
		ORDER BY created_at, id
	`, filter.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return result, nil
}

func (r productRepo) UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.RefreshStockFlag()
	res, err := r.tx.q.ExecContext(ctx, `
		UPDATE products
		SET category_id = $2,
		    product_name = $3,
		    product_details = $4,
		    image = $5,
		    price = $6,
		    wholesale_price = $7,
		    minimum_order_quantity = $8,
		    stock_quantity = $9,
		    is_in_stock = $10,
		    updated_at = $11
		WHERE id = $1
	`,
		product.ID, product.CategoryID, product.Name, product.Details, product.Image,
		product.Price, product.WholesalePrice, product.MinimumOrderQuantity,
		product.StockQuantity, product.IsInStock, nowUTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Product{}, domain.ErrCategoryNotFound
		}
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	if err := affectedOne(res, domain.ErrProductNotFound); err != nil {
		return domain.Product{}, err
	}
	return r.GetProduct(ctx, product.ID)
}

func (r productRepo) DeleteProduct(ctx context.Context, id string) error {
	res, err := r.tx.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return affectedOne(res, domain.ErrProductNotFound)
}

// AdjustStock — compare-and-swap по остатку: проверка и списание в одном UPDATE.
func (r productRepo) AdjustStock(ctx context.Context, id string, delta int32) (domain.Product, error) {
	product, err := scanProduct(r.tx.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2,
		    is_in_stock = (stock_quantity + $2) > 0,
		    updated_at = $3
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING `+productColumns,
		id, delta, nowUTC(),
	))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("adjust stock: %w", err)
	}

	// Ни одна строка не обновлена: товара нет или остатка не хватает.
	current, getErr := r.GetProduct(ctx, id)
	if getErr != nil {
		return domain.Product{}, getErr
	}
	return domain.Product{}, &domain.InsufficientStockError{
		ProductID: id,
		Requested: -delta,
		Available: current.StockQuantity,
	}
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.CategoryID, &p.Name, &p.Details, &p.Image, &p.Price, &p.WholesalePrice,
		&p.MinimumOrderQuantity, &p.StockQuantity, &p.IsInStock, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

const offerColumns = `id, title, description, discount_percentage, applicable_minimum_quantity, image, created_at`

type offerRepo struct{ tx *pgTx }

func (r offerRepo) CreateOffer(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	offer.CreatedAt = nowUTC()

	_, err := r.tx.q.ExecContext(ctx, `
		INSERT INTO offers (`+offerColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		offer.ID, offer.Title, offer.Description, offer.DiscountPercentage,
		offer.ApplicableMinimumQuantity, offer.Image, offer.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Offer{}, domain.ErrDuplicate
		}
		if isCheckViolation(err) {
			return domain.Offer{}, domain.NewValidationError("discount_percentage", "must be between 0 and 100")
		}
		return domain.Offer{}, fmt.Errorf("insert offer: %w", err)
	}
	return offer, nil
}

func (r offerRepo) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	offer, err := scanOffer(r.tx.q.QueryRowContext(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Offer{}, domain.ErrOfferNotFound
	}
	if err != nil {
		return domain.Offer{}, fmt.Errorf("get offer: %w", err)
	}
	return offer, nil
}

func (r offerRepo) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	rows, err := r.tx.q.QueryContext(ctx, `SELECT `+offerColumns+` FROM offers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Offer, 0)
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		result = append(result, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return result, nil
}

func (r offerRepo) UpdateOffer(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	res, err := r.tx.q.ExecContext(ctx, `
		UPDATE offers
		SET title = $2, description = $3, discount_percentage = $4,
		    applicable_minimum_quantity = $5, image = $6
		WHERE id = $1
	`, offer.ID, offer.Title, offer.Description, offer.DiscountPercentage, offer.ApplicableMinimumQuantity, offer.Image)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("update offer: %w", err)
	}
	if err := affectedOne(res, domain.ErrOfferNotFound); err != nil {
		return domain.Offer{}, err
	}
	return r.GetOffer(ctx, offer.ID)
}

func (r offerRepo) DeleteOffer(ctx context.Context, id string) error {
	res, err := r.tx.q.ExecContext(ctx, `DELETE FROM offers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}
	return affectedOne(res, domain.ErrOfferNotFound)
}

func scanOffer(row rowScanner) (domain.Offer, error) {
	var o domain.Offer
	err := row.Scan(&o.ID, &o.Title, &o.Description, &o.DiscountPercentage, &o.ApplicableMinimumQuantity, &o.Image, &o.CreatedAt)
	return o, err
}

var (
	_ domain.CategoryRepository = categoryRepo{}
	_ domain.ProductRepository  = productRepo{}
	_ domain.OfferRepository    = offerRepo{}
)
