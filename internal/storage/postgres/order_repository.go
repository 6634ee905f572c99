package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const (
	orderColumns = `id, business_user_id, order_date, total_price, shipping_address, billing_address,
	status, payment_terms, order_type, cashback_applied, updated_at`
	lineItemColumns = `id, order_id, product_id, quantity, price, wholesale_price, total`
)

type orderRepo struct{ tx *pgTx }

func (r orderRepo) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := nowUTC()
	if order.OrderDate.IsZero() {
		order.OrderDate = now
	}
	order.UpdatedAt = now
	order.Items = nil

	_, err := r.tx.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.ID, order.CustomerID, order.OrderDate, order.TotalPrice, order.ShippingAddress,
		order.BillingAddress, string(order.Status), order.PaymentTerms, string(order.OrderType),
		order.CashbackApplied, order.UpdatedAt,
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return domain.Order{}, domain.ErrCustomerNotFound
		case isUniqueViolation(err):
			return domain.Order{}, domain.ErrDuplicate
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

func (r orderRepo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := scanOrder(r.tx.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}

	orders := []domain.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r orderRepo) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_date, id`)
}

func (r orderRepo) ListOrdersByCustomers(ctx context.Context, customerIDs []string) ([]domain.Order, error) {
	if len(customerIDs) == 0 {
		return []domain.Order{}, nil
	}
	return r.list(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE business_user_id = ANY($1)
		ORDER BY order_date, id
	`, customerIDs)
}

func (r orderRepo) CountOrdersByCustomer(ctx context.Context, customerID string) (int, error) {
	var count int
	if err := r.tx.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders WHERE business_user_id = $1
	`, customerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// UpdateOrder перезаписывает изменяемые поля; order_date не меняется никогда.
func (r orderRepo) UpdateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	res, err := r.tx.q.ExecContext(ctx, `
		UPDATE orders
		SET total_price = $2,
		    shipping_address = $3,
		    billing_address = $4,
		    status = $5,
		    payment_terms = $6,
		    order_type = $7,
		    cashback_applied = $8,
		    updated_at = $9
		WHERE id = $1
	`,
		order.ID, order.TotalPrice, order.ShippingAddress, order.BillingAddress, string(order.Status),
		order.PaymentTerms, string(order.OrderType), order.CashbackApplied, nowUTC(),
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}
	if err := affectedOne(res, domain.ErrOrderNotFound); err != nil {
		return domain.Order{}, err
	}
	return r.GetOrder(ctx, order.ID)
}

// DeleteOrder опирается на ON DELETE CASCADE для позиций и таймлайна.
func (r orderRepo) DeleteOrder(ctx context.Context, id string) error {
	res, err := r.tx.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return affectedOne(res, domain.ErrOrderNotFound)
}

func (r orderRepo) InsertLineItem(ctx context.Context, item domain.OrderProduct) (domain.OrderProduct, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	_, err := r.tx.q.ExecContext(ctx, `
		INSERT INTO order_products (`+lineItemColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, item.WholesalePrice, item.Total)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.OrderProduct{}, fmt.Errorf("insert line item: %w", domain.ErrProductNotFound)
		}
		return domain.OrderProduct{}, fmt.Errorf("insert line item: %w", err)
	}
	return item, nil
}

func (r orderRepo) GetLineItem(ctx context.Context, orderID, itemID string) (domain.OrderProduct, error) {
	item, err := scanLineItem(r.tx.q.QueryRowContext(ctx, `
		SELECT `+lineItemColumns+` FROM order_products WHERE id = $1 AND order_id = $2
	`, itemID, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OrderProduct{}, domain.ErrLineItemNotFound
	}
	if err != nil {
		return domain.OrderProduct{}, fmt.Errorf("get line item: %w", err)
	}
	return item, nil
}

func (r orderRepo) UpdateLineItem(ctx context.Context, item domain.OrderProduct) (domain.OrderProduct, error) {
	res, err := r.tx.q.ExecContext(ctx, `
		UPDATE order_products
		SET product_id = $3, quantity = $4, price = $5, wholesale_price = $6, total = $7
		WHERE id = $1 AND order_id = $2
	`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, item.WholesalePrice, item.Total)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.OrderProduct{}, domain.ErrProductNotFound
		}
		return domain.OrderProduct{}, fmt.Errorf("update line item: %w", err)
	}
	if err := affectedOne(res, domain.ErrLineItemNotFound); err != nil {
		return domain.OrderProduct{}, err
	}
	return item, nil
}

func (r orderRepo) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.tx.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems загружает позиции всех заказов одним запросом.
func (r orderRepo) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Items = make([]domain.OrderProduct, 0)
	}

	rows, err := r.tx.q.QueryContext(ctx, `
		SELECT `+lineItemColumns+`
		FROM order_products
		WHERE order_id = ANY($1)
		ORDER BY position
	`, ids)
	if err != nil {
		return fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate line items: %w", err)
	}
	return nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o         domain.Order
		status    string
		orderType string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.OrderDate, &o.TotalPrice, &o.ShippingAddress, &o.BillingAddress,
		&status, &o.PaymentTerms, &orderType, &o.CashbackApplied, &o.UpdatedAt,
	)
	o.Status = domain.OrderStatus(status)
	o.OrderType = domain.OrderType(orderType)
	return o, err
}

func scanLineItem(row rowScanner) (domain.OrderProduct, error) {
	var li domain.OrderProduct
	err := row.Scan(&li.ID, &li.OrderID, &li.ProductID, &li.Quantity, &li.Price, &li.WholesalePrice, &li.Total)
	return li, err
}

var _ domain.OrderRepository = orderRepo{}
