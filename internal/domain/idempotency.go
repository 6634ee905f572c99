package domain

import "time"

// DefaultIdempotencyTTL — срок хранения ответа, если вызывающий не задал свой.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStatus — состояние запроса, пришедшего с idempotency-key.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — запрос принят и ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — запрос выполнен, ответ сохранён для повтора.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — запрос завершился ошибкой, ответ с ошибкой сохранён.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord — сохранённый результат оформления заказа по ключу.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	return s == IdempotencyStatusProcessing || s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// Finished сообщает, что ответ по ключу уже можно воспроизвести.
func (r IdempotencyRecord) Finished() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Expired сообщает, истёк ли срок хранения записи к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !r.TTLAt.After(now)
}
