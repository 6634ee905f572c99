package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const idempotencyColumns = `key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at`

// IdempotencyRepository хранит ключи оформления заказов в idempotency_keys.
type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(store *Store) *IdempotencyRepository {
	return &IdempotencyRepository{db: store.DB()}
}

// CreateProcessing вставляет ключ в статусе processing. Ключ с истёкшим TTL занимается заново;
// живой ключ возвращается вместе с ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
func (r *IdempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := nowUTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(domain.DefaultIdempotencyTTL)
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanIdempotencyRecord(r.db.QueryRowContext(queryCtx, `
		INSERT INTO idempotency_keys AS k (`+idempotencyColumns+`)
		VALUES ($1, $2, NULL, NULL, 'processing', $3, $4, $4)
		ON CONFLICT (key) DO UPDATE
		SET request_hash = EXCLUDED.request_hash, response_body = NULL, http_status = NULL,
		    status = 'processing', ttl_at = EXCLUDED.ttl_at,
		    created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at
		WHERE k.ttl_at <= EXCLUDED.created_at
		RETURNING `+idempotencyColumns,
		key, requestHash, ttlAt, now))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return domain.IdempotencyRecord{}, fmt.Errorf("reserve idempotency key %s: %w", key, err)
	}

	// Конфликт с живым ключом: RETURNING не вернул строку.
	existing, err := r.Get(ctx, key)
	if err != nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
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

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	record, err := scanIdempotencyRecord(r.db.QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`, key))
	if err != nil && !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return domain.IdempotencyRecord{}, fmt.Errorf("load idempotency key %s: %w", key, err)
	}
	return record, err
}

func (r *IdempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *IdempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// Release удаляет ключ в статусе processing. Завершённый ответ остаётся в таблице.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1 AND status = $2`,
		key, string(domain.IdempotencyStatusProcessing))
	if err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	return nil
}

// DeleteExpired удаляет до limit ключей с ttl_at <= before, начиная с самых старых.
// Строки, заблокированные параллельной очисткой, пропускаются.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = nowUTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// limit <= 0 снимает ограничение: LIMIT NULL в PostgreSQL означает «все строки».
	var batch sql.NullInt64
	if limit > 0 {
		batch = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		WITH expired AS (
			SELECT key FROM idempotency_keys
			WHERE ttl_at <= $1
			ORDER BY ttl_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		DELETE FROM idempotency_keys k USING expired e WHERE k.key = e.key
	`, before, batch)
	if err != nil {
		return 0, fmt.Errorf("sweep idempotency keys: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep idempotency keys: %w", err)
	}
	return int(n), nil
}

func (r *IdempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = $2, response_body = $3, http_status = $4, updated_at = $5
		WHERE key = $1
	`, key, string(status), responseBody, httpStatus, nowUTC())
	if err != nil {
		return fmt.Errorf("store %s response for key %s: %w", status, key, err)
	}
	return affectedOne(res, domain.ErrIdempotencyKeyNotFound)
}

func scanIdempotencyRecord(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		record     domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	err := row.Scan(&record.Key, &record.RequestHash, &record.ResponseBody, &httpStatus, &status,
		&record.TTLAt, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown idempotency status %q", status)
	}
	record.HTTPStatus = int(httpStatus.Int64)
	record.TTLAt, record.CreatedAt, record.UpdatedAt = record.TTLAt.UTC(), record.CreatedAt.UTC(), record.UpdatedAt.UTC()
	return record, nil
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
