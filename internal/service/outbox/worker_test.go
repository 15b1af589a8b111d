package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

func orderEvent(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   "order-" + id,
		EventType:     "order.status_changed",
		Payload:       []byte(`{"status":"confirmed"}`),
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-1")}}
	publisher := &stubPublisher{}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	sent := worker.ProcessOnce(context.Background())

	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"msg-1"}, repo.sent())
	assert.Empty(t, repo.failed())
	assert.Equal(t, 1, publisher.calls())
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-2")}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	sent := worker.ProcessOnce(context.Background())

	assert.Zero(t, sent)
	assert.Equal(t, 3, publisher.calls())
	assert.Empty(t, repo.sent())
	assert.Equal(t, []string{"msg-2"}, repo.failed())
	require.Equal(t, 1, dlqPublisher.calls())

	var dlq map[string]any
	require.NoError(t, json.Unmarshal(dlqPublisher.last().Payload, &dlq))
	assert.Equal(t, "msg-2", dlq["outbox_id"])
	assert.Contains(t, dlq["publish_error"], "broker unavailable")
	assert.Equal(t, map[string]any{"status": "confirmed"}, dlq["payload"])
	assert.Equal(t, "order-msg-2", dlq["aggregate_id"])
}

func TestWorker_ProcessOnce_CanceledDuringBackoffKeepsPending(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-9")}}
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}
	worker := NewWorker(repo, publisher, WithDLQPublisher(dlq), WithRetryBaseDelay(time.Second), WithMaxAttempts(5))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Zero(t, worker.ProcessOnce(ctx))
	assert.Equal(t, 1, publisher.calls())
	assert.Empty(t, repo.failed(), "interrupted delivery must stay pending")
	assert.Zero(t, dlq.calls())
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-3")}}
	publisher := &stubPublisher{
		sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
	}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3))

	worker.ProcessOnce(context.Background())

	assert.Equal(t, 3, publisher.calls())
	assert.Equal(t, []string{"msg-3"}, repo.sent())
	assert.Empty(t, repo.failed())
}

func TestWorker_ProcessOnce_RecordsMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-4"), orderEvent("msg-5")}}
	publisher := &stubPublisher{sequenceErrors: []error{errors.New("once"), nil, nil}}

	worker := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMetrics(metrics.NewOutboxMetrics(registry)))
	worker.now = func() time.Time { return time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC) }

	require.Equal(t, 2, worker.ProcessOnce(context.Background()))

	expected := `
# HELP shop_outbox_publish_attempts_total Total number of outbox publish attempts grouped by result.
# TYPE shop_outbox_publish_attempts_total counter
shop_outbox_publish_attempts_total{result="retry_error"} 1
shop_outbox_publish_attempts_total{result="sent"} 2
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "shop_outbox_publish_attempts_total"))

	pending := `
# HELP shop_outbox_pending_records Current number of pending records in transactional outbox.
# TYPE shop_outbox_pending_records gauge
shop_outbox_pending_records 0
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(pending), "shop_outbox_pending_records"))
}

func TestWorker_ProcessOnce_PullErrorSkipsBatch(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pullErr: errors.New("db down")}
	publisher := &stubPublisher{}

	assert.Zero(t, NewWorker(repo, publisher).ProcessOnce(context.Background()))
	assert.Zero(t, publisher.calls())
}

func TestWorker_ProcessOnce_CanceledContext(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-7")}}
	publisher := &stubPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, NewWorker(repo, publisher).ProcessOnce(ctx))
	assert.Zero(t, publisher.calls())
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderEvent("msg-8")}}
	publisher := &stubPublisher{}
	worker := NewWorker(repo, publisher, WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return len(repo.sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(10*time.Millisecond))

	assert.Equal(t, 10*time.Millisecond, worker.retryBackoff(1))
	assert.Equal(t, 20*time.Millisecond, worker.retryBackoff(2))
	assert.Equal(t, 40*time.Millisecond, worker.retryBackoff(3))
	assert.Equal(t, maxRetryDelay, worker.retryBackoff(200))

	assert.Zero(t, NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryBaseDelay(-time.Second)).retryBackoff(3))
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	pullErr   error
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, msg)
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(_ context.Context) (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = s.pending[0].CreatedAt
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	s.drop(id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	s.drop(id)
	return nil
}

func (s *stubOutboxRepo) drop(id string) {
	for i, msg := range s.pending {
		if msg.ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func (s *stubOutboxRepo) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sentIDs...)
}

func (s *stubOutboxRepo) failed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failedIDs...)
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	published      []domain.OutboxMessage
	callCount      int
}

func (s *stubPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.published = append(s.published, msg)
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.published) == 0 {
		return domain.OutboxMessage{}
	}
	return s.published[len(s.published)-1]
}
