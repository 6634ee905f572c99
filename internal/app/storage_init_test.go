package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/wholesale/internal/health"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	defer func() { _ = deps.close() }()

	if deps.store == nil || deps.outboxRepo == nil || deps.idempotencyRepo == nil {
		t.Fatalf("memory dependencies must be initialized: %+v", deps)
	}
	if deps.cleanupRepo == nil {
		t.Fatal("memory idempotency keys must be cleaned by the worker")
	}
	if deps.redisChecker != nil {
		t.Fatal("redis checker must be nil without redis address")
	}
	if check := deps.storageChecker.Check(context.Background()); check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage, got %+v", check)
	}
}

func TestInitRuntimeDependencies_EmptyDriverDefaultsToMemory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{}, log.WithField("test", "default-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(empty) failed: %v", err)
	}
	if deps.store == nil {
		t.Fatal("store should not be nil")
	}
	if err := deps.close(); err != nil {
		t.Fatalf("close memory deps: %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestRuntimeDependencies_CloseNil(t *testing.T) {
	t.Parallel()

	var deps *runtimeDependencies
	if err := deps.close(); err != nil {
		t.Fatalf("nil deps close: %v", err)
	}
}
