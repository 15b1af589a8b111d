// Package idempotency чистит просроченные ключи Idempotency-Key, по которым
// POST /orders повторяет сохранённые ответы.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 500
)

// CleanupWorker периодически удаляет ключи с истёкшим ttl порциями по batchSize.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	metrics   *metrics.CleanupMetrics
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) { w.logger = logger }
}

func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithInterval задаёт паузу между проходами; значения <= 0 игнорируются.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт лимит одного DELETE; значения <= 0 игнорируются.
func WithBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "idempotency-cleanup")
	}
	return w
}

// Run делает проход сразу и затем каждые interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) error {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup disabled: no repository")
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	deleted, err := w.Sweep(ctx, w.now())
	if errors.Is(err, context.Canceled) {
		return
	}
	w.metrics.RecordRun(err, deleted)

	entry := w.logger.WithField("deleted", deleted)
	switch {
	case err != nil:
		entry.WithError(err).Warn("idempotency cleanup failed")
	case deleted > 0:
		entry.Info("expired idempotency keys removed")
	}
}

// Sweep удаляет все ключи с ttl <= before и возвращает их число.
// Очередная порция запрашивается, пока предыдущая была заполнена целиком.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		w.metrics.RecordDeleted(n)
		if n < w.batchSize {
			return total, nil
		}
	}
}
