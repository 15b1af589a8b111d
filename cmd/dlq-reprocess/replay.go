package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

// partitionStream: часть sarama.PartitionConsumer, которую читает replayer.
type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// dlqSource читает партиции DLQ.
type dlqSource interface {
	Partitions(topic string) ([]int32, error)
	// Bounds возвращает [oldest, newest) для партиции.
	Bounds(topic string, partition int32) (oldest, newest int64, err error)
	Open(topic string, partition int32, offset int64) (partitionStream, error)
	Close() error
}

// replaySink реализуется *kafka.Producer.
type replaySink interface {
	Send(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
	Close() error
}

type saramaSource struct {
	client   sarama.Client
	consumer sarama.Consumer
}

func (s saramaSource) Partitions(topic string) ([]int32, error) {
	return s.client.Partitions(topic)
}

func (s saramaSource) Bounds(topic string, partition int32) (int64, int64, error) {
	oldest, err := s.client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, err
	}
	newest, err := s.client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, err
	}
	return oldest, newest, nil
}

func (s saramaSource) Open(topic string, partition int32, offset int64) (partitionStream, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s saramaSource) Close() error {
	return errors.Join(s.consumer.Close(), s.client.Close())
}

func connectKafka(cfg config) (dlqSource, replaySink, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = clientID
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect kafka: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaSource{client: client, consumer: consumer}
	if !cfg.execute {
		return source, nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.brokers, ClientID: clientID})
	if err != nil {
		_ = source.Close()
		return nil, nil, err
	}
	return source, producer, nil
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

type replayer struct {
	cfg    config
	source dlqSource
	sink   replaySink
	logger *log.Entry
	now    func() time.Time
}

func newReplayer(cfg config, source dlqSource, sink replaySink, logger *log.Entry) *replayer {
	return &replayer{cfg: cfg, source: source, sink: sink, logger: logger, now: time.Now}
}

// Run проходит партиции по возрастанию номера, пока не исчерпан общий limit.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var stats replayStats
	if r.cfg.execute && r.sink == nil {
		return stats, errors.New("producer is required in execute mode")
	}

	partitions, err := r.source.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return stats, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - stats.scanned
		if budget <= 0 {
			break
		}
		if err := r.drain(ctx, partition, budget, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// drain читает партицию до её newest-offset на момент старта, budget сообщений или паузы idleTimeout.
func (r *replayer) drain(ctx context.Context, partition int32, budget int, stats *replayStats) error {
	oldest, newest, err := r.source.Bounds(r.cfg.sourceTopic, partition)
	if err != nil {
		return fmt.Errorf("offsets of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return nil
	}
	start := oldest
	if r.cfg.fromNewest {
		start = max(newest-int64(budget), oldest)
	}

	stream, err := r.source.Open(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for read := 0; read < budget; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return nil
		case cerr := <-stream.Errors():
			if cerr != nil {
				return fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return nil
			}
			idle.Reset(r.cfg.idleTimeout)
			read++
			stats.scanned++
			if err := r.replay(ctx, msg, stats); err != nil {
				return err
			}
			if msg.Offset+1 >= newest {
				return nil
			}
		}
	}
	return nil
}

func (r *replayer) replay(ctx context.Context, msg *sarama.ConsumerMessage, stats *replayStats) error {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	letter, err := decodeReplay(msg.Value, r.now())
	if err != nil {
		stats.skipped++
		entry.WithError(err).Warn("skip unsupported dlq message")
		return nil
	}

	if !r.cfg.execute {
		stats.replayed++
		entry.WithFields(log.Fields{"key": letter.key, "event_type": letter.eventType}).Info("dlq replay candidate")
		return nil
	}

	headers := map[string]string{
		kafka.HeaderEventType:  letter.eventType,
		kafka.HeaderMessageID:  letter.id,
		kafka.HeaderReplayedAt: r.now().UTC().Format(time.RFC3339),
	}
	if err := r.sink.Send(ctx, r.cfg.targetTopic, letter.key, letter.value, headers); err != nil {
		return fmt.Errorf("republish %s: %w", letter.id, err)
	}
	stats.replayed++
	return nil
}

type replayEvent struct {
	id        string
	key       string
	eventType string
	value     []byte
}

// decodeReplay восстанавливает исходный конверт события из записи DLQ.
func decodeReplay(raw []byte, now time.Time) (replayEvent, error) {
	letter, err := kafka.ParseDeadLetter(raw)
	if err != nil {
		return replayEvent{}, err
	}
	envelope := letter.Envelope(now)
	value, err := json.Marshal(envelope)
	if err != nil {
		return replayEvent{}, fmt.Errorf("encode replay envelope: %w", err)
	}
	return replayEvent{id: envelope.ID, key: envelope.Key(), eventType: envelope.EventType, value: value}, nil
}
