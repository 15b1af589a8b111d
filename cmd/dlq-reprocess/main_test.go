package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
)

const (
	dlqTopic    = "shop.dlq"
	eventsTopic = "shop.order.events"
)

func deadLetter(t *testing.T, orderID string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":             "outbox-" + orderID,
		"aggregate_type": "order",
		"aggregate_id":   orderID,
		"event_type":     "order.status_changed",
		"payload": map[string]any{
			"outbox_id":     "outbox-" + orderID,
			"aggregate_id":  orderID,
			"event_type":    "order.status_changed",
			"payload":       map[string]any{"status": "confirmed"},
			"publish_error": "timeout",
		},
	})
	require.NoError(t, err)
	return raw
}

func testConfig() config {
	return config{sourceTopic: dlqTopic, targetTopic: eventsTopic, limit: 10, idleTimeout: 20 * time.Millisecond}
}

func newTestReplayer(cfg config, source dlqSource, sink replaySink) *replayer {
	r := newReplayer(cfg, source, sink, log.WithField("test", true))
	r.now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	return r
}

func TestParseConfig(t *testing.T) {
	t.Setenv("SHOP_KAFKA_BROKERS", "env-broker:9092")
	t.Setenv("SHOP_KAFKA_DLQ_TOPIC", "custom.dlq")

	cfg, err := parseConfig(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
	assert.Equal(t, "custom.dlq", cfg.sourceTopic)
	assert.Equal(t, kafka.TopicOrderEvents, cfg.targetTopic)
	assert.Equal(t, "dry-run", cfg.mode())

	cfg, err = parseConfig([]string{
		"-brokers= b1:9092, ,b2:9092 ",
		"-limit=5",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
	}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.brokers)
	assert.Equal(t, 5, cfg.limit)
	assert.True(t, cfg.fromNewest)
	assert.Equal(t, "execute", cfg.mode())
	assert.Equal(t, 3*time.Second, cfg.idleTimeout)
}

func TestParseConfig_Invalid(t *testing.T) {
	t.Setenv("SHOP_KAFKA_BROKERS", "")

	cases := map[string][]string{
		"kafka brokers are required": {"-brokers="},
		"source-topic is required":   {"-brokers=b:9092", "-source-topic= "},
		"target-topic is required":   {"-brokers=b:9092", "-target-topic="},
		"must differ":                {"-brokers=b:9092", "-source-topic=x", "-target-topic=x"},
		"limit must be > 0":          {"-brokers=b:9092", "-limit=0"},
		"idle-timeout must be > 0":   {"-brokers=b:9092", "-idle-timeout=0s"},
	}
	for want, args := range cases {
		_, err := parseConfig(args, io.Discard)
		assert.ErrorContains(t, err, want)
	}
}

func TestDecodeReplay(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	got, err := decodeReplay(deadLetter(t, "order-1"), now)
	require.NoError(t, err)
	assert.Equal(t, "order-1", got.key)
	assert.Equal(t, "outbox-order-1", got.id)
	assert.Equal(t, "order.status_changed", got.eventType)

	envelope, err := kafka.ParseEnvelope(got.value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"confirmed"}`, string(envelope.Payload))
	assert.True(t, now.Equal(envelope.PublishedAt))

	for _, raw := range []string{`{"foo":"bar"}`, `not-json`, `{"id":"x","payload":"not-an-object"}`} {
		_, err := decodeReplay([]byte(raw), now)
		assert.Error(t, err, raw)
	}
}

func TestReplayer_DryRunDoesNotPublish(t *testing.T) {
	source := newStubSource()
	source.add(0, 0, 2, deadLetter(t, "order-1"))

	stats, err := newTestReplayer(testConfig(), source, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{scanned: 1, replayed: 1}, stats)
	assert.Equal(t, []int64{0}, source.openedAt(0))
}

func TestReplayer_ExecuteRepublishesAndSkipsGarbage(t *testing.T) {
	source := newStubSource()
	source.add(0, 0, 2, []byte(`{"foo":"bar"}`), deadLetter(t, "order-2"))

	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if msg.Topic != eventsTopic || string(key) != "order-2" {
			return fmt.Errorf("unexpected message %s/%s", msg.Topic, key)
		}
		return nil
	})
	producer := kafka.NewProducerFromSync(mock, nil)
	defer func() { require.NoError(t, producer.Close()) }()

	cfg := testConfig()
	cfg.execute = true
	stats, err := newTestReplayer(cfg, source, producer).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{scanned: 2, replayed: 1, skipped: 1}, stats)
}

func TestReplayer_LimitSpansPartitionsInOrder(t *testing.T) {
	source := newStubSource()
	source.add(2, 0, 1, deadLetter(t, "order-2"))
	source.add(0, 0, 1, deadLetter(t, "order-0"))

	cfg := testConfig()
	cfg.limit = 1
	stats, err := newTestReplayer(cfg, source, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.replayed)
	assert.Len(t, source.openedAt(0), 1)
	assert.Empty(t, source.openedAt(2))
}

func TestReplayer_FromNewestStartsNearEnd(t *testing.T) {
	source := newStubSource()
	source.add(0, 3, 10)

	cfg := testConfig()
	cfg.fromNewest = true
	cfg.limit = 2
	_, err := newTestReplayer(cfg, source, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{8}, source.openedAt(0))
}

func TestReplayer_EmptyPartitionIsNotOpened(t *testing.T) {
	source := newStubSource()
	source.add(0, 5, 5)

	stats, err := newTestReplayer(testConfig(), source, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.scanned)
	assert.Empty(t, source.openedAt(0))
}

func TestReplayer_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.execute = true
	_, err := newTestReplayer(cfg, newStubSource(), nil).Run(context.Background())
	require.ErrorContains(t, err, "producer is required")

	source := newStubSource()
	source.add(0, 0, 2)
	source.boundsErr = errors.New("offsets down")
	_, err = newTestReplayer(testConfig(), source, nil).Run(context.Background())
	require.ErrorContains(t, err, "offsets down")

	source = newStubSource()
	source.add(0, 0, 2)
	source.openErr = errors.New("consume down")
	_, err = newTestReplayer(testConfig(), source, nil).Run(context.Background())
	require.ErrorContains(t, err, "consume down")

	source = newStubSource()
	source.partitions[0] = &stubPartition{newest: 2, stream: &stubStream{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}}
	source.partitions[0].stream.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	_, err = newTestReplayer(testConfig(), source, nil).Run(context.Background())
	require.ErrorContains(t, err, "consumer boom")

	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer := kafka.NewProducerFromSync(mock, nil)
	source = newStubSource()
	source.add(0, 0, 1, deadLetter(t, "order-3"))
	_, err = newTestReplayer(cfg, source, producer).Run(context.Background())
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

func TestReplayer_IdleTimeoutAndCancel(t *testing.T) {
	idle := &stubStream{messages: make(chan *sarama.ConsumerMessage), errors: make(chan *sarama.ConsumerError)}
	source := newStubSource()
	source.partitions[0] = &stubPartition{newest: 2, stream: idle}

	stats, err := newTestReplayer(testConfig(), source, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.scanned)
	assert.True(t, idle.closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source = newStubSource()
	source.partitions[0] = &stubPartition{newest: 2, stream: &stubStream{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}}
	cfg := testConfig()
	cfg.idleTimeout = time.Minute
	_, err = newTestReplayer(cfg, source, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_ClosesConnections(t *testing.T) {
	cfg := testConfig()
	cfg.execute = true

	err := run(context.Background(), cfg, func(config) (dlqSource, replaySink, error) {
		return nil, nil, errors.New("connect failed")
	})
	require.ErrorContains(t, err, "connect failed")

	source := newStubSource()
	source.add(0, 0, 1, deadLetter(t, "order-1"))
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()

	require.NoError(t, run(context.Background(), cfg, func(config) (dlqSource, replaySink, error) {
		return source, kafka.NewProducerFromSync(mock, nil), nil
	}))
	assert.True(t, source.closed)
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	var exitErr *exec.ExitError
	require.ErrorAs(t, cmd.Run(), &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}

type stubPartition struct {
	oldest, newest int64
	stream         *stubStream
	opened         []int64
}

type stubSource struct {
	partitions map[int32]*stubPartition
	boundsErr  error
	openErr    error
	closed     bool
}

func newStubSource() *stubSource {
	return &stubSource{partitions: make(map[int32]*stubPartition)}
}

// add регистрирует партицию с закрытым потоком из values; offsets идут от oldest.
func (s *stubSource) add(partition int32, oldest, newest int64, values ...[]byte) {
	messages := make(chan *sarama.ConsumerMessage, len(values))
	for i, value := range values {
		messages <- &sarama.ConsumerMessage{Partition: partition, Offset: oldest + int64(i), Value: value}
	}
	close(messages)
	errs := make(chan *sarama.ConsumerError)
	close(errs)
	s.partitions[partition] = &stubPartition{oldest: oldest, newest: newest, stream: &stubStream{messages: messages, errors: errs}}
}

func (s *stubSource) openedAt(partition int32) []int64 {
	if p, ok := s.partitions[partition]; ok {
		return p.opened
	}
	return nil
}

func (s *stubSource) Partitions(string) ([]int32, error) {
	out := make([]int32, 0, len(s.partitions))
	for id := range s.partitions {
		out = append(out, id)
	}
	return out, nil
}

func (s *stubSource) Bounds(_ string, partition int32) (int64, int64, error) {
	if s.boundsErr != nil {
		return 0, 0, s.boundsErr
	}
	p := s.partitions[partition]
	return p.oldest, p.newest, nil
}

func (s *stubSource) Open(_ string, partition int32, offset int64) (partitionStream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	p := s.partitions[partition]
	p.opened = append(p.opened, offset)
	return p.stream, nil
}

func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

type stubStream struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubStream) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubStream) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubStream) Close() error {
	s.closed = true
	return nil
}
