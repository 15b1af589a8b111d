package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

const kafkaClientID = "shop-api"

// eventPublishers: куда outbox-воркер отправляет события и мёртвые письма.
type eventPublishers struct {
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
	producer *kafka.Producer
}

// initKafkaProducer подключается к брокерам, если они заданы.
// Возвращает nil, nil при пустом списке брокеров.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: brokers, ClientID: kafkaClientID})
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, events stay in outbox log only")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// initPublishers выбирает паблишеры событий: Kafka при наличии брокеров,
// иначе запись событий в лог.
func initPublishers(cfg Config, logger *log.Entry) eventPublishers {
	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil || producer == nil {
		fallback := logPublisher{logger: logger.WithField("publisher", "log")}
		return eventPublishers{events: fallback, dlq: fallback}
	}
	return eventPublishers{
		events:   kafka.NewEventsPublisher(producer, cfg.KafkaOrderTopic),
		dlq:      kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic),
		producer: producer,
	}
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// logPublisher пишет события в лог, когда брокер не настроен.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_id":       msg.ID,
		"aggregate_type": msg.AggregateType,
		"aggregate_id":   msg.AggregateID,
		"event_type":     msg.EventType,
	}).Info("outbox event published")
	return nil
}
