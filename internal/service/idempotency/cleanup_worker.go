package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wholesale_idempotency_sweep_runs_total",
		Help: "Idempotency key sweeps grouped by result.",
	}, []string{"result"})
	sweptKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wholesale_idempotency_swept_keys_total",
		Help: "Expired checkout idempotency keys removed by the sweeper.",
	})
	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wholesale_idempotency_sweep_duration_seconds",
		Help:    "Duration of a single idempotency key sweep.",
		Buckets: prometheus.DefBuckets,
	})
)

// ExpiredKeyDeleter удаляет ключи с истёкшим TTL не больше limit за вызов.
type ExpiredKeyDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// SweepResult — итог одного прохода очистки.
type SweepResult struct {
	Deleted int
	Batches int
}

type cleanupConfig struct {
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*cleanupConfig)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(c *cleanupConfig) { c.logger = logger }
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(c *cleanupConfig) { c.interval = interval }
}

// WithBatchSize ограничивает число ключей, удаляемых одним запросом к хранилищу.
func WithBatchSize(batchSize int) CleanupOption {
	return func(c *cleanupConfig) { c.batchSize = batchSize }
}

func withClock(now func() time.Time) CleanupOption {
	return func(c *cleanupConfig) { c.now = now }
}

// CleanupWorker удаляет ключи оформления заказов, чей срок повторного ответа истёк.
// Нужен для памяти и PostgreSQL; в Redis ключи истекают сами.
type CleanupWorker struct {
	deleter ExpiredKeyDeleter
	cfg     cleanupConfig
}

func NewCleanupWorker(deleter ExpiredKeyDeleter, options ...CleanupOption) *CleanupWorker {
	cfg := cleanupConfig{
		interval:  10 * time.Minute,
		batchSize: 500,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "idempotency-sweeper")
	}
	if cfg.interval <= 0 {
		cfg.interval = 10 * time.Minute
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = 500
	}
	return &CleanupWorker{deleter: deleter, cfg: cfg}
}

// Run выполняет проход сразу и затем раз в interval, пока ctx не отменён.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.deleter == nil {
		w.cfg.logger.Warn("idempotency sweeper has no storage, exiting")
		return
	}

	ticker := time.NewTicker(w.cfg.interval)
	defer ticker.Stop()

	for {
		w.sweepAndReport(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) sweepAndReport(ctx context.Context) {
	started := time.Now()
	result, err := w.Sweep(ctx, w.cfg.now())
	sweepDuration.Observe(time.Since(started).Seconds())

	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		sweepRuns.WithLabelValues("error").Inc()
		w.cfg.logger.WithError(err).WithField("deleted", result.Deleted).Warn("idempotency sweep failed")
	default:
		sweepRuns.WithLabelValues("ok").Inc()
		if result.Deleted > 0 {
			w.cfg.logger.WithFields(log.Fields{
				"deleted": result.Deleted,
				"batches": result.Batches,
			}).Info("expired idempotency keys removed")
		}
	}
}

// Sweep удаляет все ключи с ttl <= before. Неполная порция означает, что просроченных ключей больше нет.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (SweepResult, error) {
	var result SweepResult
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		deleted, err := w.deleter.DeleteExpired(ctx, before, w.cfg.batchSize)
		if err != nil {
			return result, err
		}
		result.Batches++
		result.Deleted += deleted
		sweptKeys.Add(float64(deleted))

		if deleted < w.cfg.batchSize {
			return result, nil
		}
	}
}
