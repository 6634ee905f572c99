package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл оптового заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ принят, обработка ещё не начата.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusProcessing — заказ комплектуется.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "Shipped"
	// OrderStatusDelivered — заказ получен клиентом.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled — заказ отменён.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo проверяет переход статуса. Повторная установка того же статуса допустима.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseOrderStatus приводит строку к статусу заказа.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", NewValidationError("status", fmt.Sprintf("unknown status %q", raw))
	}
	return status, nil
}

// OrderType — канал оформления заказа.
type OrderType string

const (
	OrderTypeOnline  OrderType = "Online"
	OrderTypeOffline OrderType = "Offline"
)

// Valid проверяет, что тип заказа поддерживается.
func (t OrderType) Valid() bool {
	return t == OrderTypeOnline || t == OrderTypeOffline
}

// ParseOrderType приводит строку к типу заказа.
func ParseOrderType(raw string) (OrderType, error) {
	orderType := OrderType(raw)
	if !orderType.Valid() {
		return "", NewValidationError("order_type", fmt.Sprintf("unknown order type %q", raw))
	}
	return orderType, nil
}

// OrderProduct — позиция заказа. Total всегда равен Price * Quantity.
type OrderProduct struct {
	ID             string
	OrderID        string
	ProductID      string
	Quantity       int32
	Price          decimal.Decimal
	WholesalePrice decimal.Decimal
	Total          decimal.Decimal
}

// RecomputeTotal пересчитывает сумму позиции. Вызывается при каждом сохранении.
func (li *OrderProduct) RecomputeTotal() {
	li.Total = li.Price.Mul(decimal.NewFromInt32(li.Quantity))
}

// Validate проверяет количество и цены позиции.
func (li OrderProduct) Validate() error {
	switch {
	case li.ProductID == "":
		return NewValidationError("product_id", "is required")
	case li.Quantity <= 0:
		return NewValidationError("quantity", "must be positive")
	case li.Price.IsNegative() || !IsMoney(li.Price):
		return NewValidationError("price", "must be a non-negative amount with at most two decimal places")
	case li.WholesalePrice.IsNegative() || !IsMoney(li.WholesalePrice):
		return NewValidationError("wholesale_price", "must be a non-negative amount with at most two decimal places")
	}
	return nil
}

// IsMoney проверяет, что сумма представима с точностью до копейки.
func IsMoney(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}

// Order агрегирует оптовый заказ и его позиции.
type Order struct {
	ID              string
	CustomerID      string
	OrderDate       time.Time
	TotalPrice      decimal.Decimal
	ShippingAddress string
	BillingAddress  string
	Status          OrderStatus
	PaymentTerms    string
	OrderType       OrderType
	CashbackApplied decimal.Decimal
	Items           []OrderProduct
	UpdatedAt       time.Time
}

// LineItemsTotal возвращает сумму price * quantity по позициям.
func LineItemsTotal(items []OrderProduct) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt32(item.Quantity)))
	}
	return sum
}

// ValidateInvariants проверяет базовые инварианты нового заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, NewValidationError("business_user", "is required"))
	}
	if len(o.Items) == 0 {
		errs = append(errs, NewValidationError("order_products", "at least one line item is required"))
	}
	if o.TotalPrice.IsNegative() || !IsMoney(o.TotalPrice) {
		errs = append(errs, NewValidationError("total_price", "must be a non-negative amount with at most two decimal places"))
	}
	if o.Status != "" && !o.Status.Valid() {
		errs = append(errs, NewValidationError("status", fmt.Sprintf("unknown status %q", o.Status)))
	}
	if o.OrderType != "" && !o.OrderType.Valid() {
		errs = append(errs, NewValidationError("order_type", fmt.Sprintf("unknown order type %q", o.OrderType)))
	}
	for _, item := range o.Items {
		if err := item.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs
	}

	// Сумма сравнивается точно, в decimal, без допуска.
	if computed := LineItemsTotal(o.Items); !computed.Equal(o.TotalPrice) {
		errs = append(errs, &TotalMismatchError{Declared: o.TotalPrice, Computed: computed})
	}
	return errs
}
