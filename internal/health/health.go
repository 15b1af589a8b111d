// Package health отдаёт liveness/readiness пробы и сводный отчёт о зависимостях магазина.
//
// Зависимость регистрируется как критичная (ошибка делает сервис unhealthy и снимает
// readiness) или опциональная (ошибка даёт degraded, трафик продолжает идти).
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity упорядочивает статусы: общий статус равен худшему из проверок.
func (s Status) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// Check: результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report: тело /healthz.
type Report struct {
	Status        Status           `json:"status"`
	Version       string           `json:"version,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Checks        map[string]Check `json:"checks,omitempty"`
}

// Checker проверяет зависимость в пределах ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки и отдаёт их по HTTP.
type Handler struct {
	version string
	started time.Time
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewHandler(version string) *Handler {
	return &Handler{
		version:  version,
		started:  time.Now(),
		timeout:  2 * time.Second,
		checkers: make(map[string]Checker),
	}
}

// SetTimeout задаёт общий дедлайн прогона проверок; значения <=0 игнорируются.
func (h *Handler) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		h.mu.Lock()
		h.timeout = timeout
		h.mu.Unlock()
	}
}

// RegisterChecker добавляет проверку или заменяет одноимённую.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run запускает проверки параллельно под общим дедлайном.
func (h *Handler) Run(ctx context.Context) Report {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	checkers := make([]Checker, 0, len(h.checkers))
	for name, checker := range h.checkers {
		names = append(names, name)
		checkers = append(checkers, checker)
	}
	timeout := h.timeout
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]Check, len(checkers))
	var g errgroup.Group
	for i, checker := range checkers {
		g.Go(func() error {
			results[i] = checker.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:        StatusHealthy,
		Version:       h.version,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Checks:        make(map[string]Check, len(results)),
	}
	for i, check := range results {
		report.Checks[names[i]] = check
		if check.Status.severity() > report.Status.severity() {
			report.Status = check.Status
		}
	}
	return report
}

// ServeHTTP отдаёт полный отчёт; unhealthy отвечает 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode(report.Status))
	_ = json.NewEncoder(w).Encode(report)
}

// ReadinessHandler отвечает 503, пока недоступна хотя бы одна критичная зависимость.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	status := h.Run(r.Context()).Status
	body := "ready"
	if status == StatusUnhealthy {
		body = "not ready"
	}
	w.WriteHeader(statusCode(status))
	_, _ = w.Write([]byte(body))
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func statusCode(status Status) int {
	if status == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// FuncChecker превращает функцию проверки в Checker.
type FuncChecker struct {
	name    string
	onError Status
	probe   func(ctx context.Context) error
}

// NewChecker: критичная проверка.
func NewChecker(name string, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, onError: StatusUnhealthy, probe: probe}
}

// NewOptionalChecker: проверка, ошибка которой даёт только degraded.
func NewOptionalChecker(name string, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, onError: StatusDegraded, probe: probe}
}

func (c *FuncChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.probe(ctx)
	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = c.onError
		check.Message = err.Error()
	}
	return check
}
