package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// DefaultTTL — срок, в течение которого повтор запроса с тем же ключом получает сохранённый ответ.
const DefaultTTL = domain.DefaultIdempotencyTTL

// Guard защищает оформление заказа от повторного выполнения при ретраях клиента:
// кэшбэк и списание остатков происходят не более одного раза на ключ.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

// NewGuard создаёт guard поверх хранилища ключей. ttl <= 0 означает DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// HashRequest возвращает отпечаток запроса. scope отделяет одинаковые тела разных методов.
func HashRequest(scope string, body []byte) string {
	payload := make([]byte, 0, len(scope)+1+len(body))
	payload = append(payload, scope...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Begin занимает ключ. Если запрос с этим ключом уже завершён, возвращает его запись
// и replay=true: вызывающий отдаёт сохранённый ответ вместо повторного выполнения.
// Ключ, занятый другим payload, даёт domain.ErrIdempotencyHashMismatch; запрос,
// который ещё выполняется, даёт domain.ErrIdempotencyKeyAlreadyExists.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (record domain.IdempotencyRecord, replay bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, false, domain.ErrIdempotencyKeyRequired
	}

	record, err = g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return record, false, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return domain.IdempotencyRecord{}, false, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Finished() {
			g.logger.WithFields(log.Fields{
				"idempotency_key": key,
				"status":          record.Status,
			}).Info("replaying stored response")
			return record, true, nil
		}
		return domain.IdempotencyRecord{}, false, err
	default:
		return domain.IdempotencyRecord{}, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
}

// Complete сохраняет успешный ответ. Ошибка сохранения только логируется:
// запрос уже выполнен и его результат нужно вернуть клиенту.
func (g *Guard) Complete(ctx context.Context, key string, body []byte, status int) {
	if err := g.repo.MarkDone(ctx, key, body, status); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
	}
}

// Release освобождает ключ после сбоя на стороне сервера: такой ответ не сохраняется,
// и повтор с тем же ключом выполнит запрос заново.
// Отмена контекста запроса не мешает освобождению.
func (g *Guard) Release(ctx context.Context, key string) {
	if err := g.repo.Release(context.WithoutCancel(ctx), key); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key")
	}
}

// Fail сохраняет ответ с ошибкой, чтобы повтор получил тот же результат.
func (g *Guard) Fail(ctx context.Context, key string, body []byte, status int) {
	if err := g.repo.MarkFailed(ctx, key, body, status); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}
