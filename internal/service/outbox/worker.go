package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wholesale_outbox_publish_attempts_total",
		Help: "Outbox publish attempts grouped by result.",
	}, []string{"result"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wholesale_outbox_pending_records",
		Help: "Pending records in the transactional outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wholesale_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending outbox record in seconds.",
	})
)

// DeadLetterPublisher принимает сообщения, которые не удалось опубликовать за все попытки.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, event domain.OutboxMessage, cause error) error
}

// config собирает параметры воркера из опций.
type config struct {
	logger         *log.Entry
	deadLetters    DeadLetterPublisher
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*config)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(c *config) { c.logger = logger }
}

// WithDeadLetters задаёт получателя сообщений после исчерпания попыток.
func WithDeadLetters(publisher DeadLetterPublisher) Option {
	return func(c *config) { c.deadLetters = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(c *config) { c.pollInterval = interval }
}

// WithBatchSize задаёт размер батча.
func WithBatchSize(batchSize int) Option {
	return func(c *config) { c.batchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации одного сообщения.
func WithMaxAttempts(maxAttempts int) Option {
	return func(c *config) { c.maxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт начальную паузу exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(c *config) { c.retryBaseDelay = delay }
}

// Worker публикует события заказов из outbox после фиксации транзакции.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       config
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	cfg := config{
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&cfg)
	}

	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "outbox-worker")
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}
	if cfg.maxAttempts <= 0 {
		cfg.maxAttempts = defaultMaxAttempts
	}
	if cfg.retryBaseDelay < 0 {
		cfg.retryBaseDelay = 0
	}

	return &Worker{repo: repo, publisher: publisher, cfg: cfg}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.cfg.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce публикует один батч и возвращает число отправленных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.refreshBacklog(ctx)

	events, err := w.repo.PullPending(ctx, w.cfg.batchSize)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return sent
		}

		if err := w.publishWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				return sent
			}
			w.handleExhausted(ctx, event, err)
			continue
		}

		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			w.cfg.logger.WithError(err).WithField("outbox_id", event.ID).Warn("failed to mark outbox message as sent")
			continue
		}
		sent++
	}
	return sent
}

func (w *Worker) handleExhausted(ctx context.Context, event domain.OutboxMessage, cause error) {
	fields := log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}
	w.cfg.logger.WithError(cause).WithFields(fields).Error("outbox publish failed after retries")
	publishAttempts.WithLabelValues("failed").Inc()

	if w.cfg.deadLetters != nil {
		if err := w.cfg.deadLetters.PublishDeadLetter(ctx, event, cause); err != nil {
			w.cfg.logger.WithError(err).WithFields(fields).Warn("failed to publish to dead letter queue")
			publishAttempts.WithLabelValues("dlq_failed").Inc()
		} else {
			publishAttempts.WithLabelValues("dlq").Inc()
		}
	}
	if err := w.repo.MarkFailed(ctx, event.ID); err != nil {
		w.cfg.logger.WithError(err).WithFields(fields).Warn("failed to mark outbox message as failed")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.maxAttempts; attempt++ {
		err := w.publisher.Publish(ctx, event)
		if err == nil {
			publishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		lastErr = err
		publishAttempts.WithLabelValues("retry_error").Inc()

		if attempt == w.cfg.maxAttempts {
			break
		}
		if delay := w.backoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", domain.ErrOutboxPublish, w.cfg.maxAttempts, lastErr)
}

// backoff удваивает базовую паузу на каждой попытке, не выходя за пределы time.Duration.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.cfg.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	const maxDelay = time.Duration(1<<63 - 1)
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	return delay
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.cfg.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	oldestPendingAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}
