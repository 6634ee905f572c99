package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultReplayLimit       = 100
	defaultReplayIdleTimeout = 2 * time.Second
)

// ReplayOptions задаёт источник, лимит и режим переотправки DLQ.
type ReplayOptions struct {
	// SourceTopic — DLQ, из которого читаются сообщения.
	SourceTopic string
	// FallbackTopic используется, если в сообщении нет заголовка x-original-topic.
	FallbackTopic string
	Limit         int
	IdleTimeout   time.Duration
	// Execute=false — dry-run: сообщения только логируются.
	Execute bool
}

// ReplayStats — итог прохода по DLQ.
type ReplayStats struct {
	Scanned  int
	Replayed int
	Skipped  int
}

// DeadLetterReplayer возвращает события заказов из DLQ в их исходный topic.
type DeadLetterReplayer struct {
	consumer sarama.Consumer
	producer sarama.SyncProducer
	opts     ReplayOptions
	logger   *log.Entry
}

// NewDeadLetterReplayer создаёт replayer поверх готовых consumer и producer.
// producer может быть nil только в dry-run.
func NewDeadLetterReplayer(consumer sarama.Consumer, producer sarama.SyncProducer, opts ReplayOptions) *DeadLetterReplayer {
	if strings.TrimSpace(opts.SourceTopic) == "" {
		opts.SourceTopic = TopicDeadLetterQueue
	}
	if strings.TrimSpace(opts.FallbackTopic) == "" {
		opts.FallbackTopic = TopicOrderEvents
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultReplayLimit
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultReplayIdleTimeout
	}
	return &DeadLetterReplayer{
		consumer: consumer,
		producer: producer,
		opts:     opts,
		logger:   log.WithField("component", "dlq-replayer"),
	}
}

// OpenDeadLetterReplayer подключается к брокерам. В режиме Execute дополнительно создаётся producer.
func OpenDeadLetterReplayer(brokers []string, opts ReplayOptions) (*DeadLetterReplayer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	var producer sarama.SyncProducer
	if opts.Execute {
		producer, err = sarama.NewSyncProducer(brokers, newSyncProducerConfig())
		if err != nil {
			_ = consumer.Close()
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
	}
	return NewDeadLetterReplayer(consumer, producer, opts), nil
}

// Close закрывает consumer и producer.
func (r *DeadLetterReplayer) Close() error {
	var errs []error
	if r.producer != nil {
		errs = append(errs, r.producer.Close())
	}
	if r.consumer != nil {
		errs = append(errs, r.consumer.Close())
	}
	return errors.Join(errs...)
}

// Replay читает DLQ с начала каждой партиции до текущего high watermark, но не больше Limit сообщений.
func (r *DeadLetterReplayer) Replay(ctx context.Context) (ReplayStats, error) {
	var stats ReplayStats
	if r.opts.Execute && r.producer == nil {
		return stats, errors.New("producer is required in execute mode")
	}

	partitions, err := r.consumer.Partitions(r.opts.SourceTopic)
	if err != nil {
		return stats, fmt.Errorf("get partitions for topic %s: %w", r.opts.SourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if stats.Scanned >= r.opts.Limit {
			break
		}
		if err := r.replayPartition(ctx, partition, &stats); err != nil {
			return stats, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":  r.opts.Execute,
		"scanned":  stats.Scanned,
		"replayed": stats.Replayed,
		"skipped":  stats.Skipped,
	}).Info("dlq replay finished")
	return stats, nil
}

func (r *DeadLetterReplayer) replayPartition(ctx context.Context, partition int32, stats *ReplayStats) error {
	pc, err := r.consumer.ConsumePartition(r.opts.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.opts.IdleTimeout)
	defer idle.Stop()

	for stats.Scanned < r.opts.Limit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return nil
		case consumerErr, ok := <-pc.Errors():
			if ok && consumerErr != nil {
				return fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil {
				return nil
			}
			idle.Reset(r.opts.IdleTimeout)
			stats.Scanned++

			if err := r.replayMessage(msg, stats); err != nil {
				return err
			}
			if msg.Offset+1 >= pc.HighWaterMarkOffset() {
				return nil
			}
		}
	}
	return nil
}

func (r *DeadLetterReplayer) replayMessage(msg *sarama.ConsumerMessage, stats *ReplayStats) error {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	var envelope outboxEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || envelope.ID == "" {
		stats.Skipped++
		entry.Warn("skip dlq message without outbox envelope")
		return nil
	}

	target := headerValue(msg.Headers, HeaderOriginalTopic)
	if target == "" {
		target = r.opts.FallbackTopic
	}
	if target == r.opts.SourceTopic {
		stats.Skipped++
		entry.Warn("skip dlq message pointing back to dlq")
		return nil
	}

	entry = entry.WithFields(log.Fields{
		"target_topic": target,
		"event_type":   envelope.EventType,
		"outbox_id":    envelope.ID,
	})
	if !r.opts.Execute {
		stats.Replayed++
		entry.Info("dlq replay candidate")
		return nil
	}

	_, _, err := r.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     target,
		Key:       sarama.ByteEncoder(msg.Key),
		Value:     sarama.ByteEncoder(msg.Value),
		Headers:   []sarama.RecordHeader{header(HeaderEventType, envelope.EventType)},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("replay outbox message %s: %w", envelope.ID, err)
	}
	stats.Replayed++
	entry.Info("dlq message replayed")
	return nil
}

func headerValue(headers []*sarama.RecordHeader, key string) string {
	for _, h := range headers {
		if h != nil && string(h.Key) == key {
			return strings.TrimSpace(string(h.Value))
		}
	}
	return ""
}
