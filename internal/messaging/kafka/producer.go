package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const clientID = "wholesale-service"

// Producer публикует JSON-события заказов в Kafka синхронно: вызов возвращается после подтверждения брокера.
type Producer struct {
	sync            sarama.SyncProducer
	deadLetterTopic string
	logger          *log.Entry
	now             func() time.Time
}

func newSyncProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.Idempotent = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Compression = sarama.CompressionSnappy
	// Идемпотентный producer требует не больше одного запроса в полёте.
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(brokers, newSyncProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return newProducer(sp), nil
}

func newProducer(sp sarama.SyncProducer) *Producer {
	return &Producer{
		sync:            sp,
		deadLetterTopic: TopicDeadLetterQueue,
		logger:          log.WithField("component", "kafka-producer"),
		now:             time.Now,
	}
}

// PublishEvent отправляет event в topic. Сообщения с одинаковым key попадают в одну партицию.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event interface{}, headers ...sarama.RecordHeader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := p.encode(topic, key, event, headers)
	if err != nil {
		return err
	}

	fields := log.Fields{"topic": topic, "key": key}
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka delivery failed")
		return fmt.Errorf("deliver to %s: %w", topic, err)
	}

	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka delivery acknowledged")
	return nil
}

func (p *Producer) encode(topic, key string, event interface{}, headers []sarama.RecordHeader) (*sarama.ProducerMessage, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event for %s: %w", topic, err)
	}
	return &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: p.now(),
	}, nil
}

// PublishDeadLetter кладёт event в DLQ. Заголовки хранят исходный topic, причину и время,
// по ним DeadLetterReplayer возвращает сообщение обратно.
func (p *Producer) PublishDeadLetter(ctx context.Context, originalTopic, key string, event interface{}, cause error) error {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	return p.PublishEvent(ctx, p.deadLetterTopic, key, event,
		header(HeaderOriginalTopic, originalTopic),
		header(HeaderErrorMessage, reason),
		header(HeaderFailedAt, p.now().UTC().Format(time.RFC3339Nano)),
	)
}

func header(key, value string) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(key), Value: []byte(value)}
}

func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
