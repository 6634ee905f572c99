package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/wholesale/internal/app"
)

const (
	envHTTPAddr                    = "WHOLESALE_HTTP_ADDR"
	envGRPCAddr                    = "WHOLESALE_GRPC_ADDR"
	envMetricsAddr                 = "WHOLESALE_METRICS_ADDR"
	envStorageDriver               = "WHOLESALE_STORAGE_DRIVER"
	envPostgresDSN                 = "WHOLESALE_POSTGRES_DSN"
	envPostgresAutoMigrate         = "WHOLESALE_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envOrderEventsTopic            = "WHOLESALE_ORDER_EVENTS_TOPIC"
	envRedisAddr                   = "WHOLESALE_REDIS_ADDR"
	envOutboxPollInterval          = "WHOLESALE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "WHOLESALE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "WHOLESALE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "WHOLESALE_OUTBOX_RETRY_DELAY"
	envIdempotencyTTL              = "WHOLESALE_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "WHOLESALE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "WHOLESALE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envRateLimitRPS                = "WHOLESALE_RATE_LIMIT_RPS"
	envStrictStatusTransitions     = "WHOLESALE_STRICT_STATUS_TRANSITIONS"
	envShutdownTimeout             = "WHOLESALE_SHUTDOWN_TIMEOUT"
)

type envLookup func(string) (string, bool)

func positiveInt(v int) bool                { return v > 0 }
func positiveDuration(v time.Duration) bool { return v > 0 }

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение не останавливает запуск: поле остаётся по умолчанию, ошибка попадает в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, positiveInt, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envOrderEventsTopic, &cfg.OrderEventsTopic)
	str(envRedisAddr, &cfg.RedisAddr)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize)
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	if v, ok := lookup(envRateLimitRPS); ok && strings.TrimSpace(v) != "" {
		rps, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Errorf("%s: %w", envRateLimitRPS, err))
		case rps < 0:
			warnings = append(warnings, fmt.Errorf("%s: must be >= 0", envRateLimitRPS))
		default:
			cfg.RateLimitRPS = rps
		}
	}
	boolean(envStrictStatusTransitions, &cfg.StrictStatusTransitions)
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("duration %s %s", value, rule)
	}
	return value, nil
}
