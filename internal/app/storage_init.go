package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/wholesale/internal/health"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/postgres"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/redisstore"
)

// runtimeDependencies — хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	store           domain.Store
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	// cleanupRepo — хранилище ключей, которое нужно чистить вручную; nil для Redis.
	cleanupRepo    domain.IdempotencyRepository
	storageChecker healthcheck.Checker
	redisChecker   healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	var (
		deps *runtimeDependencies
		err  error
	)
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		deps = initMemoryStorage()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		deps, err = initPostgresStorage(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		if err := attachRedis(ctx, deps, addr, logger); err != nil {
			_ = deps.close()
			return nil, err
		}
	}
	return deps, nil
}

func initMemoryStorage() *runtimeDependencies {
	store := memory.NewStore()
	idempotencyRepo := memory.NewIdempotencyRepository()
	return &runtimeDependencies{
		store:           store,
		outboxRepo:      store.Outbox(),
		idempotencyRepo: idempotencyRepo,
		cleanupRepo:     idempotencyRepo,
		storageChecker:  healthcheck.NewPingChecker(store),
	}
}

func initPostgresStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres storage requires WHOLESALE_POSTGRES_DSN")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres storage: %w", err)
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
	}
	logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")

	idempotencyRepo := postgres.NewIdempotencyRepository(store)
	return &runtimeDependencies{
		store:           store,
		outboxRepo:      postgres.NewOutboxRepository(store),
		idempotencyRepo: idempotencyRepo,
		cleanupRepo:     idempotencyRepo,
		storageChecker:  healthcheck.NewPingChecker(store),
		closeFn:         store.Close,
	}, nil
}

func attachRedis(ctx context.Context, deps *runtimeDependencies, addr string, logger *log.Entry) error {
	client, err := redisstore.NewClient(ctx, addr)
	if err != nil {
		return fmt.Errorf("init redis idempotency store: %w", err)
	}
	repo := redisstore.NewIdempotencyRepository(client)

	deps.idempotencyRepo = repo
	deps.cleanupRepo = nil
	deps.redisChecker = healthcheck.NewOptionalPingChecker(repo)

	storageClose := deps.closeFn
	deps.closeFn = func() error {
		redisErr := client.Close()
		if storageClose != nil {
			return errors.Join(storageClose(), redisErr)
		}
		return redisErr
	}
	logger.WithField("addr", addr).Info("idempotency keys are stored in redis")
	return nil
}
