package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	updatedAt  time.Time
}

// outboxWriter ставит сообщения в outbox внутри транзакции.
type outboxWriter struct{ tx *memTx }

// Enqueue сохраняет событие со статусом `pending`; при откате транзакции оно исчезает вместе с остальными изменениями.
func (w outboxWriter) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := w.tx.writable(); err != nil {
		return domain.OutboxMessage{}, err
	}
	return enqueueOutbox(w.tx.st, msg, w.tx.now()), nil
}

func enqueueOutbox(st *state, msg domain.OutboxMessage, now time.Time) domain.OutboxMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = now
	msg.Payload = append([]byte(nil), msg.Payload...)
	st.outbox[msg.ID] = outboxRecord{msg: msg, status: outboxStatusPending, updatedAt: now}
	return msg
}

// OutboxRepository — доступ воркера к outbox поверх общего состояния Store.
type OutboxRepository struct {
	store *Store
}

// Outbox возвращает репозиторий outbox для воркера публикации.
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{store: s}
}

// Enqueue сохраняет событие вне бизнес-транзакции.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return enqueueOutbox(r.store.state, msg, r.store.now()), nil
}

// PullPending возвращает до limit самых старых сообщений со статусом `pending`.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := r.pending()
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Stats возвращает размер backlog и время самого старого сообщения.
func (r *OutboxRepository) Stats(context.Context) (domain.OutboxStats, error) {
	pending := r.pending()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].CreatedAt
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	return r.pending()
}

func (r *OutboxRepository) mark(id, status string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	record, ok := r.store.state.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = r.store.now()
	r.store.state.outbox[id] = record
	return nil
}

func (r *OutboxRepository) pending() []domain.OutboxMessage {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0)
	for _, rec := range r.store.state.outbox {
		if rec.status == outboxStatusPending {
			result = append(result, rec.msg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

var (
	_ domain.OutboxWriter     = outboxWriter{}
	_ domain.OutboxRepository = (*OutboxRepository)(nil)
)
