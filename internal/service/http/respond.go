package httpsvc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const maxBodyBytes = 1 << 20

// successEnvelope: формат успешного ответа.
type successEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	Timestamp  string `json:"timestamp"`
}

// errorEnvelope: формат ответа с ошибкой. Error содержит текст статуса HTTP.
type errorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successEnvelope{
		StatusCode: status,
		Message:    message,
		Data:       data,
		Timestamp:  timestamp(),
	})
}

func writeFailure(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorEnvelope{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
		Timestamp:  timestamp(),
		Path:       r.URL.Path,
	})
}

// writeError отображает ошибку сервиса на статус и пишет конверт ошибки.
// Внутренние ошибки логируются и наружу не раскрываются.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Entry, err error) {
	status := statusFromError(err)
	message := domain.Message(err)
	if status == http.StatusInternalServerError {
		logger.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
		message = "Internal server error"
	}
	writeFailure(w, r, status, message)
}

func statusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadRequest), domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, errPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest      = errors.New("bad request")
	errPayloadTooLarge = errors.New("payload too large")
)

// requestError: ошибка разбора запроса, отдаётся клиенту как есть.
type requestError struct {
	kind    error
	message string
}

func (e *requestError) Error() string         { return e.message }
func (e *requestError) Unwrap() error         { return e.kind }
func (e *requestError) ClientMessage() string { return e.message }

func badRequest(format string, args ...any) error {
	return &requestError{kind: errBadRequest, message: fmt.Sprintf(format, args...)}
}

// decodeJSON читает тело запроса строго: неизвестные поля и мусор после объекта отклоняются.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return badRequest(msgBodyRequired)
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return jsonError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("Request body must contain a single JSON object")
	}
	return nil
}

// decodeOptionalJSON допускает пустое тело.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := decodeJSON(w, r, dst)
	var reqErr *requestError
	if errors.As(err, &reqErr) && reqErr.message == msgBodyRequired {
		return nil
	}
	return err
}

const msgBodyRequired = "Request body is required"

func jsonError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		tooLarge  *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return badRequest(msgBodyRequired)
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return badRequest("Malformed JSON in request body")
	case errors.As(err, &typeErr):
		return badRequest("Invalid value for field %s", typeErr.Field)
	case errors.As(err, &tooLarge):
		return &requestError{kind: errPayloadTooLarge, message: "Request body is too large"}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return badRequest("Unknown field %s", strings.Trim(field, `"`))
	default:
		return badRequest("Invalid request body")
	}
}
