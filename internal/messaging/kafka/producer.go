package kafka

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ProducerConfig задаёт подключение к Kafka.
type ProducerConfig struct {
	Brokers  []string
	ClientID string
	// MaxRetries: повторы sarama на уровне брокера; 0 означает 5.
	MaxRetries int
}

func (c ProducerConfig) sarama() *sarama.Config {
	cfg := sarama.NewConfig()
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}
	cfg.Producer.Retry.Max = 5
	if c.MaxRetries > 0 {
		cfg.Producer.Retry.Max = c.MaxRetries
	}
	// Идемпотентный producer требует acks=all и одного запроса в полёте.
	cfg.Producer.Idempotent = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	return cfg
}

// Producer: синхронная отправка в Kafka поверх sarama.SyncProducer.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	sp, err := sarama.NewSyncProducer(cfg.Brokers, cfg.sarama())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFromSync(sp, nil), nil
}

// NewProducerFromSync оборачивает готовый SyncProducer, например mocks.SyncProducer в тестах.
func NewProducerFromSync(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{sync: sp, logger: logger, now: time.Now}
}

// Send отправляет value с ключом партиционирования key. SyncProducer не принимает ctx,
// поэтому отмена учитывается только до отправки.
func (p *Producer) Send(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   recordHeaders(headers),
		Timestamp: p.now().UTC(),
	}
	partition, offset, err := p.sync.SendMessage(msg)
	entry := p.logger.WithFields(log.Fields{"topic": topic, "key": key})
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message sent")
	return nil
}

// recordHeaders сортирует заголовки по имени, чтобы порядок не зависел от map.
func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for name, value := range headers {
		out = append(out, sarama.RecordHeader{Key: []byte(name), Value: []byte(value)})
	}
	slices.SortFunc(out, func(a, b sarama.RecordHeader) int { return bytes.Compare(a.Key, b.Key) })
	return out
}

func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
