package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderCreated EventType = "order.created"
	EventTypeOrderUpdated EventType = "order.updated"
	EventTypeOrderDeleted EventType = "order.deleted"

	// Customer события
	EventTypeCashbackAccrued EventType = "customer.cashback_accrued"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "wholesale.order.events"
	TopicDeadLetterQueue = "wholesale.dlq" // сообщения, которые не удалось опубликовать
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent — событие изменения заказа. Денежные суммы передаются строками,
// чтобы не терять точность.
type OrderEvent struct {
	EventType       EventType              `json:"event_type"`
	OrderID         string                 `json:"order_id"`
	CustomerID      string                 `json:"customer_id"`
	Status          string                 `json:"status,omitempty"`
	TotalPrice      string                 `json:"total_price,omitempty"`
	CashbackApplied string                 `json:"cashback_applied,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// CashbackEvent — начисление кэшбэка клиенту за заказ.
type CashbackEvent struct {
	EventType  EventType `json:"event_type"`
	CustomerID string    `json:"customer_id"`
	OrderID    string    `json:"order_id"`
	Amount     string    `json:"amount"`
	Balance    string    `json:"balance"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Metadata:   metadata,
	}
}

// NewCashbackEvent создает событие начисления кэшбэка
func NewCashbackEvent(customerID, orderID, amount, balance string) *CashbackEvent {
	return &CashbackEvent{
		EventType:  EventTypeCashbackAccrued,
		CustomerID: customerID,
		OrderID:    orderID,
		Amount:     amount,
		Balance:    balance,
		Timestamp:  time.Now().UTC(),
	}
}
