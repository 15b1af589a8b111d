// Package httpsvc реализует REST API магазина поверх chi.
package httpsvc

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/carts"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
	"github.com/vladislavdragonenkov/shop/internal/service/users"
)

const (
	// BasePath: префикс всех маршрутов API.
	BasePath = "/api/v1"

	defaultRequestTimeout = 30 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
)

// Services: прикладные сервисы, которые обслуживает API.
type Services struct {
	Products   *catalog.ProductService
	Categories *catalog.CategoryService
	Users      *users.Service
	Orders     *orders.Engine
	Carts      *carts.Service
}

type routerConfig struct {
	logger         *log.Entry
	metrics        *metrics.HTTPMetrics
	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	timeout        time.Duration
}

// Option настраивает роутер.
type Option func(*routerConfig)

// WithLogger задаёт логгер запросов и ошибок.
func WithLogger(logger *log.Entry) Option {
	return func(cfg *routerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMetrics включает метрики запросов.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(cfg *routerConfig) {
		cfg.metrics = m
	}
}

// WithIdempotency включает поддержку Idempotency-Key для POST /orders.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(cfg *routerConfig) {
		cfg.idempotency = repo
		if ttl > 0 {
			cfg.idempotencyTTL = ttl
		}
	}
}

// WithTimeout ограничивает время обработки запроса.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// NewRouter собирает роутер с общими middleware и всеми группами маршрутов.
func NewRouter(svc Services, opts ...Option) chi.Router {
	cfg := routerConfig{
		logger:         log.New().WithField("component", "http"),
		idempotencyTTL: defaultIdempotencyTTL,
		timeout:        defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(cfg.logger),
		instrument(cfg.metrics),
		middleware.Recoverer,
		middleware.Timeout(cfg.timeout),
	)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeFailure(w, req, http.StatusNotFound, fmt.Sprintf("Cannot %s %s", req.Method, req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeFailure(w, req, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s is not allowed on %s", req.Method, req.URL.Path))
	})

	r.Route(BasePath, func(api chi.Router) {
		api.Route("/products", (&productHandler{svc: svc.Products, logger: cfg.logger}).Routes)
		api.Route("/categories", (&categoryHandler{svc: svc.Categories, logger: cfg.logger}).Routes)
		api.Route("/users", (&userHandler{svc: svc.Users, logger: cfg.logger}).Routes)
		api.Route("/carts", (&cartHandler{svc: svc.Carts, logger: cfg.logger}).Routes)
		api.Route("/orders", (&orderHandler{
			svc:         svc.Orders,
			logger:      cfg.logger,
			idempotency: idempotent(cfg.idempotency, cfg.idempotencyTTL, cfg.logger),
		}).Routes)
	})

	return r
}
