package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	IdempotencyStoreMemory = "memory"
	IdempotencyStoreRedis  = "redis"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	MetricsAddr    string
	RequestTimeout time.Duration

	LogLevel  string
	LogFormat string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	IdempotencyStore            string
	RedisAddr                   string
	RedisPassword               string
	RedisDB                     int
	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	KafkaBrokers    []string
	KafkaOrderTopic string
	KafkaDLQTopic   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	TaxRate decimal.Decimal
	Seed    bool
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		GRPCAddr:       ":50051",
		MetricsAddr:    ":9090",
		RequestTimeout: 30 * time.Second,

		LogLevel:  "info",
		LogFormat: "text",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		IdempotencyStore:            IdempotencyStoreMemory,
		RedisAddr:                   "localhost:6379",
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		KafkaOrderTopic: "shop.order.events",
		KafkaDLQTopic:   "shop.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,

		TaxRate: decimal.RequireFromString("0.08"),
		Seed:    true,
	}
}

// LoadFromEnv накладывает переменные SHOP_* на DefaultConfig.
func LoadFromEnv() (Config, error) {
	return loadConfig(os.LookupEnv)
}

func loadConfig(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	env := envReader{lookup: lookup}

	env.str("SHOP_HTTP_ADDR", &cfg.HTTPAddr)
	env.str("SHOP_GRPC_ADDR", &cfg.GRPCAddr)
	env.str("SHOP_METRICS_ADDR", &cfg.MetricsAddr)
	env.duration("SHOP_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	env.str("SHOP_LOG_LEVEL", &cfg.LogLevel)
	env.str("SHOP_LOG_FORMAT", &cfg.LogFormat)

	env.str("SHOP_STORAGE_DRIVER", &cfg.StorageDriver)
	env.str("SHOP_POSTGRES_DSN", &cfg.PostgresDSN)
	env.boolean("SHOP_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)

	env.str("SHOP_IDEMPOTENCY_STORE", &cfg.IdempotencyStore)
	env.str("SHOP_REDIS_ADDR", &cfg.RedisAddr)
	env.str("SHOP_REDIS_PASSWORD", &cfg.RedisPassword)
	env.integer("SHOP_REDIS_DB", &cfg.RedisDB)
	env.duration("SHOP_IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	env.duration("SHOP_IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	env.integer("SHOP_IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	if raw, ok := env.value("SHOP_KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitList(raw)
	}
	env.str("SHOP_KAFKA_ORDER_TOPIC", &cfg.KafkaOrderTopic)
	env.str("SHOP_KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)

	env.duration("SHOP_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	env.integer("SHOP_OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	env.integer("SHOP_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	env.duration("SHOP_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)

	if raw, ok := env.value("SHOP_TAX_RATE"); ok {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			env.errs = append(env.errs, fmt.Errorf("SHOP_TAX_RATE: %w", err))
		} else {
			cfg.TaxRate = rate
		}
	}
	env.boolean("SHOP_SEED", &cfg.Seed)

	if err := errors.Join(env.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("SHOP_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	switch c.IdempotencyStore {
	case IdempotencyStoreMemory:
	case IdempotencyStoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("SHOP_REDIS_ADDR is required for redis idempotency store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported idempotency store %q", c.IdempotencyStore))
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("tax rate must be in [0, 1), got %s", c.TaxRate))
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox batch size and max attempts must be positive"))
	}
	if c.OutboxPollInterval <= 0 || c.IdempotencyCleanupInterval <= 0 {
		errs = append(errs, errors.New("worker intervals must be positive"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// KafkaEnabled сообщает, заданы ли брокеры.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) value(key string) (string, bool) {
	raw, ok := e.lookup(key)
	raw = strings.TrimSpace(raw)
	return raw, ok && raw != ""
}

func (e *envReader) str(key string, dst *string) {
	if raw, ok := e.value(key); ok {
		*dst = raw
	}
}

func (e *envReader) integer(key string, dst *int) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func (e *envReader) boolean(key string, dst *bool) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func (e *envReader) duration(key string, dst *time.Duration) {
	raw, ok := e.value(key)
	if !ok {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
