package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BackendDriver выбирает реализацию хранилища корзины.
type BackendDriver string

const (
	// DriverMemory — in-memory хранилище для локальной разработки и тестов.
	DriverMemory BackendDriver = "memory"
	// DriverPostgres — собственная таблица cart_lines в PostgreSQL.
	DriverPostgres BackendDriver = "postgres"
	// DriverREST — проксирование в REST backend магазина.
	DriverREST BackendDriver = "rest"
)

// Config описывает настройки запуска приложения.
type Config struct {
	APIAddr     string
	MetricsAddr string

	BackendDriver  BackendDriver
	BackendBaseURL string
	BackendToken   string
	BackendTimeout time.Duration

	PostgresDSN string
	AutoMigrate bool

	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает значения по умолчанию.
func DefaultConfig() Config {
	return Config{
		APIAddr:                     ":8080",
		MetricsAddr:                 ":9090",
		BackendDriver:               DriverMemory,
		BackendTimeout:              30 * time.Second,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// FromEnv строит конфигурацию из переменных окружения поверх значений по
// умолчанию.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("CARTSYNC_API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv("CARTSYNC_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("CARTSYNC_BACKEND_DRIVER"); v != "" {
		cfg.BackendDriver = BackendDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("CARTSYNC_BACKEND_BASE_URL"); v != "" {
		cfg.BackendBaseURL = v
	}
	if v := os.Getenv("CARTSYNC_BACKEND_TOKEN"); v != "" {
		cfg.BackendToken = v
	}
	if v := os.Getenv("CARTSYNC_BACKEND_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse CARTSYNC_BACKEND_TIMEOUT: %w", err)
		}
		cfg.BackendTimeout = timeout
	}
	if v := os.Getenv("CARTSYNC_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("CARTSYNC_AUTO_MIGRATE"); v != "" {
		autoMigrate, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse CARTSYNC_AUTO_MIGRATE: %w", err)
		}
		cfg.AutoMigrate = autoMigrate
	}
	if v := os.Getenv("CARTSYNC_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := os.Getenv("CARTSYNC_OUTBOX_POLL_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse CARTSYNC_OUTBOX_POLL_INTERVAL: %w", err)
		}
		cfg.OutboxPollInterval = interval
	}
	if v := os.Getenv("CARTSYNC_OUTBOX_BATCH_SIZE"); v != "" {
		batchSize, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse CARTSYNC_OUTBOX_BATCH_SIZE: %w", err)
		}
		cfg.OutboxBatchSize = batchSize
	}
	if v := os.Getenv("CARTSYNC_OUTBOX_MAX_ATTEMPTS"); v != "" {
		maxAttempts, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse CARTSYNC_OUTBOX_MAX_ATTEMPTS: %w", err)
		}
		cfg.OutboxMaxAttempts = maxAttempts
	}
	if v := os.Getenv("CARTSYNC_IDEMPOTENCY_CLEANUP_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse CARTSYNC_IDEMPOTENCY_CLEANUP_INTERVAL: %w", err)
		}
		cfg.IdempotencyCleanupInterval = interval
	}
	if v := os.Getenv("CARTSYNC_IDEMPOTENCY_CLEANUP_BATCH_SIZE"); v != "" {
		batchSize, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse CARTSYNC_IDEMPOTENCY_CLEANUP_BATCH_SIZE: %w", err)
		}
		cfg.IdempotencyCleanupBatchSize = batchSize
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	switch c.BackendDriver {
	case DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres driver requires CARTSYNC_POSTGRES_DSN")
		}
	case DriverREST:
		if strings.TrimSpace(c.BackendBaseURL) == "" {
			return fmt.Errorf("rest driver requires CARTSYNC_BACKEND_BASE_URL")
		}
	default:
		return fmt.Errorf("unsupported backend driver: %q", c.BackendDriver)
	}

	if c.APIAddr == "" {
		return fmt.Errorf("api address must not be empty")
	}
	if c.MetricsAddr == "" {
		return fmt.Errorf("metrics address must not be empty")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}
	return nil
}
