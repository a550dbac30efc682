package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sonicjewellers/cartsync/internal/backend/rest"
	"github.com/sonicjewellers/cartsync/internal/domain"
	"github.com/sonicjewellers/cartsync/internal/storage/memory"
	"github.com/sonicjewellers/cartsync/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Backend   domain.CartBackend
	Directory domain.UserDirectory // nil для не-REST драйверов
	Outbox    domain.OutboxRepository
	Idem      domain.IdempotencyRepository

	store      *postgres.Store
	restClient *rest.Client
	Logger     *log.Entry
}

// NewDependencies создаёт зависимости согласно выбранному драйверу.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Outbox: memory.NewOutboxRepository(),
		Idem:   memory.NewIdempotencyRepository(),
		Logger: logger,
	}

	switch cfg.BackendDriver {
	case DriverMemory:
		deps.Backend = memory.NewCartRepository()

	case DriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.store = store
		deps.Backend = postgres.NewCartRepository(store)

	case DriverREST:
		client := rest.NewClient(cfg.BackendBaseURL, cfg.BackendToken, cfg.BackendTimeout,
			logger.WithField("component", "backend-rest"))
		deps.restClient = client
		deps.Backend = rest.NewCartRepository(client)
		deps.Directory = rest.NewUserDirectory(client)

	default:
		return nil, fmt.Errorf("unsupported backend driver: %q", cfg.BackendDriver)
	}

	return deps, nil
}

// PingBackend проверяет доступность выбранного хранилища (для readiness).
func (d *Dependencies) PingBackend(ctx context.Context) error {
	switch {
	case d.store != nil:
		return d.store.Ping(ctx)
	case d.restClient != nil:
		return d.restClient.Ping(ctx)
	default:
		return nil
	}
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
