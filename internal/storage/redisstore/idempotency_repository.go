// Package redisstore хранит ключи идемпотентности в Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const (
	keyPrefix  = "wholesale:idempotency-key:"
	defaultTTL = 24 * time.Hour
)

// IdempotencyRepository — реализация domain.IdempotencyRepository поверх Redis.
// Срок хранения задаётся TTL ключа, поэтому DeleteExpired ничего не делает.
type IdempotencyRepository struct {
	rdb *redis.Client
	now func() time.Time
}

// NewIdempotencyRepository создаёт репозиторий поверх готового клиента.
func NewIdempotencyRepository(rdb *redis.Client) *IdempotencyRepository {
	return &IdempotencyRepository{
		rdb: rdb,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// NewClient создаёт клиента Redis и проверяет соединение.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

// record — JSON-представление записи в Redis.
type record struct {
	Key          string    `json:"key"`
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Status       string    `json:"status"`
	TTLAt        time.Time `json:"ttl_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r record) toDomain() domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          r.Key,
		RequestHash:  r.RequestHash,
		ResponseBody: r.ResponseBody,
		HTTPStatus:   r.HTTPStatus,
		Status:       domain.IdempotencyStatus(r.Status),
		TTLAt:        r.TTLAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// CreateProcessing занимает ключ через SET NX с TTL до ttlAt.
func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	ttl := ttlAt.Sub(now)
	if ttlAt.IsZero() || ttl <= 0 {
		ttl = defaultTTL
		ttlAt = now.Add(ttl)
	}

	rec := record{
		Key:         key,
		RequestHash: requestHash,
		Status:      string(domain.IdempotencyStatusProcessing),
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("marshal idempotency record: %w", err)
	}

	created, err := r.rdb.SetNX(ctx, keyPrefix+key, data, ttl).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if created {
		return rec.toDomain(), nil
	}

	existing, err := r.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			// ключ истёк между SETNX и GET
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return domain.IdempotencyRecord{}, err
	}
	if existing.RequestHash != requestHash {
		return existing, domain.ErrIdempotencyHashMismatch
	}
	return existing, domain.ErrIdempotencyKeyAlreadyExists
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	rec, err := r.load(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return rec.toDomain(), nil
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// Release удаляет ключ, пока он в статусе processing. WATCH отменяет удаление,
// если параллельный запрос успел сохранить ответ.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	redisKey := keyPrefix + key
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode idempotency record: %w", err)
		}
		if rec.Status != string(domain.IdempotencyStatusProcessing) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, redisKey)
			return nil
		})
		return err
	}, redisKey)
	if err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	return nil
}

// DeleteExpired ничего не удаляет: Redis сам удаляет ключи по TTL.
func (r *IdempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// Ping проверяет соединение для health-проверки.
func (r *IdempotencyRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *IdempotencyRepository) load(ctx context.Context, key string) (record, error) {
	data, err := r.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return record{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return record{}, fmt.Errorf("get idempotency key: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	return rec, nil
}

// finish перезаписывает запись, сохраняя оставшийся TTL ключа.
func (r *IdempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	rec, err := r.load(ctx, key)
	if err != nil {
		return err
	}
	rec.Status = string(status)
	rec.ResponseBody = append([]byte(nil), responseBody...)
	rec.HTTPStatus = httpStatus
	rec.UpdatedAt = r.now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	updated, err := r.rdb.SetXX(ctx, keyPrefix+key, data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("store idempotency response: %w", err)
	}
	if !updated {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
