package httpsvc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replayed"
	maxIdempotencyKey = 255
)

// idempotent повторяет сохранённый ответ для запроса с тем же Idempotency-Key.
// Запросы без заголовка проходят как есть. Повтор с другим телом или пока первый
// запрос ещё обрабатывается получает 409.
func idempotent(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if repo == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				writeFailure(w, r, http.StatusBadRequest, "Idempotency-Key must be at most 255 characters")
				return
			}

			body, err := readAndReplayBody(w, r)
			if err != nil {
				writeError(w, r, logger, jsonError(err))
				return
			}

			ctx := r.Context()
			hash := requestHash(r, body)
			entry := logger.WithField("idempotency_key", key)
			record, err := repo.Reserve(ctx, key, hash, time.Now().UTC().Add(ttl))
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) && record.Replayable():
				entry.WithField("status", record.HTTPStatus).Info("replaying stored response")
				writeStoredResponse(w, record)
				return
			case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
				writeFailure(w, r, http.StatusConflict, "A request with this Idempotency-Key is still being processed")
				return
			default:
				writeError(w, r, logger, err)
				return
			}

			// Ответ сохраняется и после отмены запроса клиентом или по таймауту.
			storeCtx := context.WithoutCancel(ctx)
			completed := false
			defer func() {
				if completed {
					return
				}
				// Паника или сбой хранилища: ключ освобождается, повтор выполнится заново.
				if err := repo.Release(storeCtx, key, hash); err != nil {
					entry.WithError(err).Error("failed to release idempotency key")
				}
			}()

			recorder := newResponseRecorder(w)
			next.ServeHTTP(recorder, r)

			if err := repo.Complete(storeCtx, key, recorder.Body(), recorder.Status()); err != nil {
				entry.WithError(err).Error("failed to store idempotent response")
				writeFailure(w, r, http.StatusInternalServerError, "Unable to store the idempotent response")
				return
			}
			completed = true
			if err := recorder.Commit(); err != nil {
				entry.WithError(err).Warn("failed to flush response")
			}
		})
	}
}

func readAndReplayBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{'|'})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func writeStoredResponse(w http.ResponseWriter, record domain.IdempotencyRecord) {
	status := record.HTTPStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set(replayHeader, "true")
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}

// responseRecorder буферизует ответ, чтобы сохранить его до отправки клиенту.
type responseRecorder struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder(parent http.ResponseWriter) *responseRecorder {
	return &responseRecorder{parent: parent, header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header {
	return r.header
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Body() []byte {
	return r.body.Bytes()
}

func (r *responseRecorder) Commit() error {
	dst := r.parent.Header()
	for key, values := range r.header {
		dst[key] = values
	}
	r.parent.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := r.parent.Write(r.body.Bytes())
	return err
}
