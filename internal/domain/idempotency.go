package domain

import (
	"net/http"
	"strings"
	"time"
)

// DefaultIdempotencyTTL: срок жизни ключа, если вызывающий его не задал.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStatus: стадия обработки запроса с Idempotency-Key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	// IdempotencyStatusFailed: ответ сохранён, но это ответ с ошибкой (4xx/5xx).
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит ответ на POST /orders с заголовком Idempotency-Key.
type IdempotencyRecord struct {
	Key string
	// RequestHash: sha256 от метода, пути и тела запроса.
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// OutcomeStatus выбирает итоговый статус записи по HTTP-коду сохранённого ответа.
func OutcomeStatus(httpStatus int) IdempotencyStatus {
	if httpStatus >= http.StatusBadRequest {
		return IdempotencyStatusFailed
	}
	return IdempotencyStatusDone
}

// NewIdempotencyRecord нормализует ключ и хэш и готовит запись в статусе processing.
// Нулевой ttlAt заменяется на now+DefaultIdempotencyTTL.
func NewIdempotencyRecord(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return IdempotencyRecord{}, ErrIdempotencyKeyRequired
	case requestHash == "":
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Expired сообщает, что срок жизни записи истёк.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.IsZero() && !now.Before(r.TTLAt)
}

// Collision объясняет, почему живой ключ нельзя занять для запроса с requestHash.
func (r IdempotencyRecord) Collision(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}

// Replayable сообщает, что ответ уже сохранён и его можно отдать повторно.
func (r IdempotencyRecord) Replayable() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// ReleasableBy сообщает, что запись ещё в обработке и занята запросом с requestHash.
func (r IdempotencyRecord) ReleasableBy(requestHash string) bool {
	return r.Status == IdempotencyStatusProcessing && r.RequestHash == strings.TrimSpace(requestHash)
}

// Complete сохраняет ответ и переводит запись в итоговый статус.
func (r *IdempotencyRecord) Complete(body []byte, httpStatus int, now time.Time) {
	r.ResponseBody = append([]byte(nil), body...)
	r.HTTPStatus = httpStatus
	r.Status = OutcomeStatus(httpStatus)
	r.UpdatedAt = now
}
