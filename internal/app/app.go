// Package app собирает магазин из конфигурации и управляет жизненным циклом
// HTTP API, gRPC health-сервера, сервера метрик и фоновых воркеров.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/carts"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	httpsvc "github.com/vladislavdragonenkov/shop/internal/service/http"
	"github.com/vladislavdragonenkov/shop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
	"github.com/vladislavdragonenkov/shop/internal/service/outbox"
	"github.com/vladislavdragonenkov/shop/internal/service/users"
	"github.com/vladislavdragonenkov/shop/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run запускает приложение и блокируется до отмены ctx или падения компонента.
// Штатная остановка по ctx возвращает nil.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := log.WithField("component", "app")
	registry := prometheus.DefaultRegisterer

	deps, err := initRuntimeDependencies(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	publishers := initPublishers(cfg, logger.WithField("layer", "kafka"))
	defer closeKafka(publishers.producer, logger)

	svc := buildServices(cfg, deps, registry, logger)
	if cfg.Seed {
		if _, err := seedData(ctx, svc, logger.WithField("layer", "seed")); err != nil {
			return err
		}
	}

	router := httpsvc.NewRouter(svc,
		httpsvc.WithLogger(logger.WithField("layer", "http")),
		httpsvc.WithMetrics(metrics.NewHTTPMetrics(registry)),
		httpsvc.WithIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL),
		httpsvc.WithTimeout(cfg.RequestTimeout),
	)
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}

	grpcServer, healthServer := newGRPCServer(registry, logger)

	outboxWorker := outbox.NewWorker(deps.outboxRepo, publishers.events,
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(registry)),
		outbox.WithDLQPublisher(publishers.dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(registry)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("HTTP API слушает %s%s", cfg.HTTPAddr, httpsvc.BasePath)
		return serveHTTP(gctx, apiSrv, logger)
	})
	if cfg.MetricsAddr != "" {
		metricsSrv := newMetricsServer(cfg.MetricsAddr, healthHandler)
		g.Go(func() error {
			logger.Infof("метрики доступны по адресу %s/metrics", cfg.MetricsAddr)
			return serveHTTP(gctx, metricsSrv, logger)
		})
	}
	if cfg.GRPCAddr != "" {
		g.Go(func() error {
			return serveGRPC(gctx, cfg.GRPCAddr, grpcServer, healthServer, logger)
		})
	}
	g.Go(func() error { return outboxWorker.Run(gctx) })
	g.Go(func() error { return cleanupWorker.Run(gctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("приложение остановлено")
	return nil
}

// buildServices связывает прикладные сервисы поверх выбранных хранилищ.
func buildServices(cfg Config, deps *runtimeDependencies, registry prometheus.Registerer, logger *log.Entry) httpsvc.Services {
	pricing := domain.DefaultPricing()
	pricing.TaxRate = cfg.TaxRate

	products := catalog.NewProductService(deps.productRepo, logger.WithField("layer", "products"))
	categories := catalog.NewCategoryService(deps.categoryRepo, products, logger.WithField("layer", "categories"))
	userSvc := users.NewService(deps.userRepo, users.WithLogger(logger.WithField("layer", "users")))
	engine := orders.NewEngine(deps.orderRepo, deps.productRepo, userSvc,
		orders.WithPricing(pricing),
		orders.WithMetrics(metrics.NewOrderMetrics(registry)),
		orders.WithLogger(logger.WithField("layer", "orders")),
		orders.WithHistory(deps.historyRepo),
		orders.WithOutbox(deps.outboxRepo),
	)
	userSvc.SetOrders(engine)

	return httpsvc.Services{
		Products:   products,
		Categories: categories,
		Users:      userSvc,
		Orders:     engine,
		Carts:      carts.NewService(deps.cartRepo, deps.productRepo, logger.WithField("layer", "carts")),
	}
}

// newGRPCServer поднимает gRPC-сервер со стандартным health-сервисом и reflection.
func newGRPCServer(registry prometheus.Registerer, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registry.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return grpcServer, healthServer
}

func serveGRPC(ctx context.Context, addr string, srv *grpc.Server, healthServer *health.Server, logger *log.Entry) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC health сервер слушает %s", addr)
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		healthServer.Shutdown()
		stoppedCh := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			srv.Stop()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newMetricsServer отдаёт /metrics и health-пробы.
func newMetricsServer(addr string, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// serveHTTP обслуживает srv до отмены ctx, затем аккуратно его останавливает.
func serveHTTP(ctx context.Context, srv *http.Server, logger *log.Entry) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownHTTP(srv, logger)
		return nil
	case err := <-errCh:
		return err
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}
