package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// timelineRepo хранит историю заказа в снимке транзакции.
type timelineRepo struct{ tx *memTx }

// Append добавляет событие, сохраняя хронологический порядок.
func (r timelineRepo) Append(_ context.Context, event domain.TimelineEvent) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, ok := r.tx.st.orders[event.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	if event.Occurred.IsZero() {
		event.Occurred = r.tx.now()
	}

	events := append(r.tx.st.timeline[event.OrderID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	r.tx.st.timeline[event.OrderID] = events
	return nil
}

// List возвращает копию событий заказа.
func (r timelineRepo) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	events := r.tx.st.timeline[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = timelineRepo{}
