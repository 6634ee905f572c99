package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const (
	applicationName = "wholesale"
	pingTimeout     = 5 * time.Second

	// opTimeout ограничивает одиночные запросы воркеров.
	opTimeout = 5 * time.Second
	// txTimeout ограничивает бизнес-транзакцию целиком.
	txTimeout = 15 * time.Second

	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	// maxTxAttempts — сколько раз транзакция запускается заново после deadlock
	// или конфликта сериализации.
	maxTxAttempts = 3
	txRetryDelay  = 20 * time.Millisecond
)

// poolSettings — параметры database/sql пула поверх pgx.
var poolSettings = struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}{
	maxOpen:     20,
	maxIdle:     10,
	maxLifetime: time.Hour,
	maxIdleTime: 10 * time.Minute,
}

// Store реализует domain.Store поверх PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open разбирает DSN, открывает пул через pgx stdlib и дожидается ответа базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok {
		connConfig.RuntimeParams["application_name"] = applicationName
	}

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(poolSettings.maxOpen)
	db.SetMaxIdleConns(poolSettings.maxIdle)
	db.SetConnMaxLifetime(poolSettings.maxLifetime)
	db.SetConnMaxIdleTime(poolSettings.maxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres is unreachable: %w", err)
	}
	return store, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping нужен health-проверке и Open.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTx выполняет fn в транзакции READ COMMITTED.
// Списание остатка и начисление кэшбэка сделаны условными UPDATE, поэтому более строгая изоляция не нужна.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.runTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// View выполняет fn в read-only транзакции.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.runTx(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Store) runTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx domain.Tx) error) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		err := s.attemptTx(ctx, opts, fn)
		if err == nil || !isRetryableTxError(err) {
			return err
		}
		if attempt == maxTxAttempts {
			return fmt.Errorf("%w: %w", domain.ErrConcurrentUpdate, err)
		}

		timer := time.NewTimer(time.Duration(attempt) * txRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", domain.ErrConcurrentUpdate, err)
		case <-timer.C:
		}
	}
}

func (s *Store) attemptTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &pgTx{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// querier — общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner — общее подмножество *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type pgTx struct {
	q querier
}

func (t *pgTx) Categories() domain.CategoryRepository { return categoryRepo{t} }
func (t *pgTx) Products() domain.ProductRepository    { return productRepo{t} }
func (t *pgTx) Offers() domain.OfferRepository        { return offerRepo{t} }
func (t *pgTx) Customers() domain.CustomerRepository  { return customerRepo{t} }
func (t *pgTx) Orders() domain.OrderRepository        { return orderRepo{t} }
func (t *pgTx) Timeline() domain.TimelineRepository   { return timelineRepo{t} }
func (t *pgTx) Outbox() domain.OutboxWriter           { return outboxWriter{t.q} }

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgErrorCode(err) == pgForeignKeyViolation
}

func isCheckViolation(err error) bool {
	return pgErrorCode(err) == pgCheckViolation
}

// isRetryableTxError — транзакцию откатил сервер из-за конкурентной транзакции.
func isRetryableTxError(err error) bool {
	switch pgErrorCode(err) {
	case pgDeadlockDetected, pgSerializationFailure:
		return true
	default:
		return false
	}
}

// affectedOne возвращает notFound, если UPDATE/DELETE не затронул ни одной строки.
func affectedOne(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*pgTx)(nil)
)
