package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// orderRepo хранит шапки заказов и позиции раздельно, как таблицы в Postgres.
type orderRepo struct{ tx *memTx }

func (r orderRepo) CreateOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Order{}, err
	}
	if _, ok := r.tx.st.customers[order.CustomerID]; !ok {
		return domain.Order{}, domain.ErrCustomerNotFound
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, exists := r.tx.st.orders[order.ID]; exists {
		return domain.Order{}, domain.ErrDuplicate
	}
	now := r.tx.now()
	if order.OrderDate.IsZero() {
		order.OrderDate = now
	}
	order.UpdatedAt = now
	order.Items = nil
	r.tx.st.orders[order.ID] = order
	return order, nil
}

func (r orderRepo) GetOrder(_ context.Context, id string) (domain.Order, error) {
	order, ok := r.tx.st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return r.withItems(order), nil
}

func (r orderRepo) ListOrders(context.Context) ([]domain.Order, error) {
	return r.collect(func(domain.Order) bool { return true }), nil
}

func (r orderRepo) ListOrdersByCustomers(_ context.Context, customerIDs []string) ([]domain.Order, error) {
	wanted := make(map[string]struct{}, len(customerIDs))
	for _, id := range customerIDs {
		wanted[id] = struct{}{}
	}
	return r.collect(func(o domain.Order) bool {
		_, ok := wanted[o.CustomerID]
		return ok
	}), nil
}

func (r orderRepo) CountOrdersByCustomer(_ context.Context, customerID string) (int, error) {
	count := 0
	for _, order := range r.tx.st.orders {
		if order.CustomerID == customerID {
			count++
		}
	}
	return count, nil
}

// UpdateOrder перезаписывает изменяемые поля; дата заказа и кэшбэк сохраняются.
func (r orderRepo) UpdateOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Order{}, err
	}
	current, ok := r.tx.st.orders[order.ID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	current.TotalPrice = order.TotalPrice
	current.ShippingAddress = order.ShippingAddress
	current.BillingAddress = order.BillingAddress
	current.Status = order.Status
	current.PaymentTerms = order.PaymentTerms
	current.OrderType = order.OrderType
	current.CashbackApplied = order.CashbackApplied
	current.UpdatedAt = r.tx.now()
	r.tx.st.orders[order.ID] = current
	return r.withItems(current), nil
}

func (r orderRepo) DeleteOrder(_ context.Context, id string) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, ok := r.tx.st.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	for itemID, rec := range r.tx.st.lineItems {
		if rec.item.OrderID == id {
			delete(r.tx.st.lineItems, itemID)
		}
	}
	delete(r.tx.st.timeline, id)
	delete(r.tx.st.orders, id)
	return nil
}

func (r orderRepo) InsertLineItem(_ context.Context, item domain.OrderProduct) (domain.OrderProduct, error) {
	if err := r.tx.writable(); err != nil {
		return domain.OrderProduct{}, err
	}
	if _, ok := r.tx.st.orders[item.OrderID]; !ok {
		return domain.OrderProduct{}, domain.ErrOrderNotFound
	}
	if _, ok := r.tx.st.products[item.ProductID]; !ok {
		return domain.OrderProduct{}, domain.ErrProductNotFound
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if _, exists := r.tx.st.lineItems[item.ID]; exists {
		return domain.OrderProduct{}, domain.ErrDuplicate
	}
	r.tx.st.lineItems[item.ID] = lineItemRecord{item: item, seq: r.tx.st.nextSeq()}
	return item, nil
}

func (r orderRepo) GetLineItem(_ context.Context, orderID, itemID string) (domain.OrderProduct, error) {
	rec, ok := r.tx.st.lineItems[itemID]
	if !ok || rec.item.OrderID != orderID {
		return domain.OrderProduct{}, domain.ErrLineItemNotFound
	}
	return rec.item, nil
}

func (r orderRepo) UpdateLineItem(_ context.Context, item domain.OrderProduct) (domain.OrderProduct, error) {
	if err := r.tx.writable(); err != nil {
		return domain.OrderProduct{}, err
	}
	rec, ok := r.tx.st.lineItems[item.ID]
	if !ok || rec.item.OrderID != item.OrderID {
		return domain.OrderProduct{}, domain.ErrLineItemNotFound
	}
	if _, ok := r.tx.st.products[item.ProductID]; !ok {
		return domain.OrderProduct{}, domain.ErrProductNotFound
	}
	rec.item = item
	r.tx.st.lineItems[item.ID] = rec
	return item, nil
}

func (r orderRepo) withItems(order domain.Order) domain.Order {
	records := make([]lineItemRecord, 0)
	for _, rec := range r.tx.st.lineItems {
		if rec.item.OrderID == order.ID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	order.Items = make([]domain.OrderProduct, len(records))
	for i, rec := range records {
		order.Items[i] = rec.item
	}
	return order
}

func (r orderRepo) collect(keep func(domain.Order) bool) []domain.Order {
	result := make([]domain.Order, 0)
	for _, order := range r.tx.st.orders {
		if keep(order) {
			result = append(result, r.withItems(order))
		}
	}
	sortByCreated(result,
		func(o domain.Order) time.Time { return o.OrderDate },
		func(o domain.Order) string { return o.ID })
	return result
}

var _ domain.OrderRepository = orderRepo{}
