package orders

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// GetOrder возвращает заказ с названием компании, названиями товаров и timeline.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (OrderDetails, error) {
	var details OrderDetails
	err := e.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		r := newResolver(tx)
		if details, err = r.details(ctx, order); err != nil {
			return err
		}
		details.Timeline, err = tx.Timeline().List(ctx, orderID)
		return err
	})
	return details, err
}

// ListOrders возвращает все заказы в порядке оформления.
func (e *Engine) ListOrders(ctx context.Context) ([]OrderDetails, error) {
	var result []OrderDetails
	err := e.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		orders, err := tx.Orders().ListOrders(ctx)
		if err != nil {
			return err
		}
		result, err = newResolver(tx).detailsList(ctx, orders)
		return err
	})
	return result, err
}

// ListOrdersByCompany возвращает заказы клиентов с точно совпадающим названием компании.
// Если такой компании нет, возвращает domain.ErrCustomerNotFound.
func (e *Engine) ListOrdersByCompany(ctx context.Context, companyName string) ([]OrderDetails, error) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return nil, domain.NewValidationError("company_name", "is required")
	}

	var result []OrderDetails
	err := e.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		customers, err := tx.Customers().FindCustomersByCompany(ctx, companyName)
		if err != nil {
			return err
		}
		if len(customers) == 0 {
			return domain.ErrCustomerNotFound
		}
		ids := make([]string, 0, len(customers))
		for _, customer := range customers {
			ids = append(ids, customer.ID)
		}
		orders, err := tx.Orders().ListOrdersByCustomers(ctx, ids)
		if err != nil {
			return err
		}
		result, err = newResolver(tx).detailsList(ctx, orders)
		return err
	})
	return result, err
}

// nameResolver подставляет названия компаний и товаров, запоминая уже найденные.
type nameResolver struct {
	tx        domain.Tx
	customers map[string]string
	products  map[string]string
}

func newResolver(tx domain.Tx) *nameResolver {
	return &nameResolver{
		tx:        tx,
		customers: make(map[string]string),
		products:  make(map[string]string),
	}
}

func (r *nameResolver) detailsList(ctx context.Context, orders []domain.Order) ([]OrderDetails, error) {
	result := make([]OrderDetails, 0, len(orders))
	for _, order := range orders {
		details, err := r.details(ctx, order)
		if err != nil {
			return nil, err
		}
		result = append(result, details)
	}
	return result, nil
}

func (r *nameResolver) details(ctx context.Context, order domain.Order) (OrderDetails, error) {
	customerName, err := r.customerName(ctx, order.CustomerID)
	if err != nil {
		return OrderDetails{}, err
	}
	details := OrderDetails{
		Order:        order,
		CustomerName: customerName,
		LineItems:    make([]LineItemDetails, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		productName, err := r.productName(ctx, item.ProductID)
		if err != nil {
			return OrderDetails{}, err
		}
		details.LineItems = append(details.LineItems, LineItemDetails{OrderProduct: item, ProductName: productName})
	}
	return details, nil
}

func (r *nameResolver) customerName(ctx context.Context, id string) (string, error) {
	if name, ok := r.customers[id]; ok {
		return name, nil
	}
	customer, err := r.tx.Customers().GetCustomer(ctx, id)
	if err != nil {
		return "", err
	}
	r.customers[id] = customer.CompanyName
	return customer.CompanyName, nil
}

func (r *nameResolver) productName(ctx context.Context, id string) (string, error) {
	if name, ok := r.products[id]; ok {
		return name, nil
	}
	product, err := r.tx.Products().GetProduct(ctx, id)
	if err != nil {
		return "", err
	}
	r.products[id] = product.Name
	return product.Name, nil
}
