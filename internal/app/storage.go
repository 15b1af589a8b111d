package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/shop/internal/storage/redis"
)

// runtimeDependencies: хранилища, выбранные конфигурацией, и их проверки.
type runtimeDependencies struct {
	productRepo     domain.ProductRepository
	userRepo        domain.UserRepository
	orderRepo       domain.OrderRepository
	cartRepo        domain.CartRepository
	categoryRepo    domain.CategoryRepository
	historyRepo     domain.HistoryRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository

	checkers map[string]healthcheck.Checker
	closers  []func() error
}

func (d *runtimeDependencies) addChecker(name string, checker healthcheck.Checker) {
	if d.checkers == nil {
		d.checkers = make(map[string]healthcheck.Checker)
	}
	d.checkers[name] = checker
}

// Close освобождает подключения в обратном порядке открытия.
func (d *runtimeDependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		deps.productRepo = memory.NewProductRepository()
		deps.userRepo = memory.NewUserRepository()
		deps.orderRepo = memory.NewOrderRepository()
		deps.cartRepo = memory.NewCartRepository()
		deps.categoryRepo = memory.NewCategoryRepository()
		deps.historyRepo = memory.NewHistoryRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres storage requires SHOP_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = deps.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.productRepo = postgres.NewProductRepository(store)
		deps.userRepo = postgres.NewUserRepository(store)
		deps.orderRepo = postgres.NewOrderRepository(store)
		deps.cartRepo = postgres.NewCartRepository(store)
		deps.categoryRepo = postgres.NewCategoryRepository(store)
		deps.historyRepo = postgres.NewHistoryRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.addChecker("postgres", healthcheck.NewChecker("postgres", store.Ping))
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.IdempotencyStore == IdempotencyStoreRedis {
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = deps.Close()
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		repo := redisstore.NewIdempotencyRepository(client)
		deps.idempotencyRepo = repo
		deps.addChecker("redis", healthcheck.NewOptionalChecker("redis", repo.Ping))
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency keys stored in redis")
	}

	return deps, nil
}
