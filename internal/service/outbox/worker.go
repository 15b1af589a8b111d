// Package outbox доставляет события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 100 * time.Millisecond
	// maxRetryDelay ограничивает паузу между попытками внутри одного цикла опроса.
	maxRetryDelay = 5 * time.Second
)

// Worker забирает pending-события пачками и публикует их с повторными попытками.
// Событие, не опубликованное за maxAttempts, уходит в DLQ и помечается failed.
type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	metrics      *metrics.OutboxMetrics
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryDelay   time.Duration
	now          func() time.Time
}

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDLQPublisher задаёт topic для событий, исчерпавших попытки. Без него такие события только помечаются failed.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlqPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу backoff; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryDelay = max(delay, 0) }
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		retryDelay:   defaultRetryDelay,
		now:          time.Now,
	}
	for _, option := range options {
		option(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "outbox")
	}
	return w
}

// Run опрашивает outbox до отмены ctx и возвращает nil при штатной остановке.
func (w *Worker) Run(ctx context.Context) error {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker disabled: no repository or publisher")
		return nil
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce обрабатывает одну пачку и возвращает число опубликованных событий.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("outbox pull failed")
		return 0
	}

	sent := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		if w.deliver(ctx, msg) {
			sent++
		}
	}
	return sent
}

// deliver публикует одно событие и фиксирует результат в outbox.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) bool {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
		"order_id":   msg.AggregateID,
	})

	err := w.publish(ctx, msg)
	switch {
	case err == nil:
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("outbox event published but not marked sent")
			return false
		}
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}

	entry.WithError(err).Error("outbox event dead-lettered")
	w.metrics.RecordAttempt("failed")
	if dlqErr := w.deadLetter(ctx, msg, err); dlqErr != nil {
		entry.WithError(dlqErr).Warn("dead letter publish failed")
		w.metrics.RecordAttempt("dlq_failed")
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("outbox event not marked failed")
	}
	return false
}

func (w *Worker) publish(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, w.retryBackoff(attempt-1)); err != nil {
				return err
			}
		}
		if lastErr = w.publisher.Publish(ctx, msg); lastErr == nil {
			w.metrics.RecordAttempt("sent")
			return nil
		}
		w.metrics.RecordAttempt("retry_error")
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, w.maxAttempts, lastErr)
}

// retryBackoff удваивает retryDelay с каждой попыткой, но не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	delay := w.retryDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// deadLetter: payload сообщения в DLQ; формат читает cmd/dlq-reprocess.
type deadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

func (w *Worker) deadLetter(ctx context.Context, msg domain.OutboxMessage, cause error) error {
	if w.dlqPublisher == nil {
		return nil
	}

	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	body, err := json.Marshal(deadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        payload,
		PublishError:   cause.Error(),
		DLQPublishedAt: w.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	letter := msg
	letter.Payload = body
	if err := w.dlqPublisher.Publish(ctx, letter); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("outbox stats failed")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}
