package domain

import "time"

const (
	// TimelineOrderCreated — заказ оформлен.
	TimelineOrderCreated = "order_created"
	// TimelineStatusChanged — статус заказа изменён.
	TimelineStatusChanged = "status_changed"
	// TimelineCashbackAccrued — клиенту начислен кэшбэк за заказ.
	TimelineCashbackAccrued = "cashback_accrued"
	// TimelineItemsAmended — изменены позиции заказа.
	TimelineItemsAmended = "items_amended"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
