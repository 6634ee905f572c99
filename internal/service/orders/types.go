package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// LineItemInput — позиция в запросе на оформление заказа. Цены обязательны:
// nil означает, что поле не передано.
type LineItemInput struct {
	ProductID      string
	Quantity       int32
	Price          *decimal.Decimal
	WholesalePrice *decimal.Decimal
}

// CreateOrderInput — запрос на оформление заказа.
type CreateOrderInput struct {
	CustomerID      string
	TotalPrice      decimal.Decimal
	ShippingAddress string
	BillingAddress  string
	PaymentTerms    string
	OrderType       domain.OrderType
	Items           []LineItemInput
}

// OrderPatch — изменяемые поля заказа. nil означает «не менять».
type OrderPatch struct {
	TotalPrice      *decimal.Decimal
	ShippingAddress *string
	BillingAddress  *string
	Status          *domain.OrderStatus
	PaymentTerms    *string
	OrderType       *domain.OrderType
}

// LineItemChange — входящая позиция при изменении заказа.
// Пустой ID означает новую позицию, иначе это изменение существующей.
// Для существующей позиции nil оставляет сохранённое значение поля,
// для новой все три поля обязательны.
type LineItemChange struct {
	ID             string
	ProductID      string
	Quantity       *int32
	Price          *decimal.Decimal
	WholesalePrice *decimal.Decimal
}

// LineItemDetails — позиция заказа с названием товара.
type LineItemDetails struct {
	domain.OrderProduct
	ProductName string
}

// OrderDetails — заказ в том виде, в котором его отдаёт API.
type OrderDetails struct {
	domain.Order
	CustomerName string
	LineItems    []LineItemDetails
	Timeline     []domain.TimelineEvent
}

// clock возвращает текущее время в UTC.
type clock func() time.Time
