package idempotency

import (
	"context"
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
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

var _ domain.IdempotencyRepository = (*stubCleanupRepo)(nil)

func TestCleanupWorker_Sweep_Batches(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{deleteResults: []int{2, 2, 1}}
	worker := NewCleanupWorker(repo, WithBatchSize(2))

	deleted, err := worker.Sweep(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)
	assert.Equal(t, 3, repo.calls())
}

func TestCleanupWorker_Sweep_Error(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{deleteErrors: []error{errors.New("boom")}}
	worker := NewCleanupWorker(repo, WithBatchSize(10))

	deleted, err := worker.Sweep(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Zero(t, deleted)
}

func TestCleanupWorker_Sweep_MemoryRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now().UTC()
	repo := memory.NewIdempotencyRepository()

	_, err := repo.Reserve(ctx, "expired-1", "hash", now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = repo.Reserve(ctx, "expired-2", "hash", now.Add(-time.Second))
	require.NoError(t, err)
	_, err = repo.Reserve(ctx, "alive", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	worker := NewCleanupWorker(repo, WithBatchSize(1), WithMetrics(metrics.NewCleanupMetrics(registry)))
	worker.now = func() time.Time { return now }
	worker.runOnce(ctx)

	_, err = repo.Get(ctx, "expired-1")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get(ctx, "alive")
	assert.NoError(t, err)

	expected := `
# HELP shop_idempotency_cleanup_deleted_total Total number of deleted expired idempotency records.
# TYPE shop_idempotency_cleanup_deleted_total counter
shop_idempotency_cleanup_deleted_total 2
# HELP shop_idempotency_cleanup_last_deleted Number of deleted records during the last cleanup run.
# TYPE shop_idempotency_cleanup_last_deleted gauge
shop_idempotency_cleanup_last_deleted 2
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"shop_idempotency_cleanup_deleted_total", "shop_idempotency_cleanup_last_deleted"))
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubCleanupRepo{deleteResults: []int{0, 0, 0}}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.calls() > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubCleanupRepo struct {
	mu sync.Mutex

	deleteResults []int
	deleteErrors  []error
	callCount     int
}

func (s *stubCleanupRepo) Reserve(context.Context, string, string, time.Time) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubCleanupRepo) Get(context.Context, string) (domain.IdempotencyRecord, error) {
	panic("not implemented")
}

func (s *stubCleanupRepo) Complete(context.Context, string, []byte, int) error {
	panic("not implemented")
}

func (s *stubCleanupRepo) Release(context.Context, string, string) error {
	panic("not implemented")
}

func (s *stubCleanupRepo) DeleteExpired(_ context.Context, _ time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++

	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}

	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubCleanupRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}
