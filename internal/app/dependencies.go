package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
	"github.com/vladislavdragonenkov/fos/internal/service/send"
	"github.com/vladislavdragonenkov/fos/internal/storage/memory"
	"github.com/vladislavdragonenkov/fos/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Entities domain.EntityRepository
	Audit    domain.AuditRepository
	Tables   domain.TableSource
	Sender   domain.SendService
	Logger   *log.Entry

	store *postgres.Store
}

// NewDependencies собирает in-memory зависимости для локальной разработки и демо.
// NOTE: mock carrier заменяется на реального клиента TMS в production-окружении.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Entities: memory.NewEntityRepository(),
		Audit:    memory.NewAuditRepository(),
		Tables:   memory.NewTableSource(),
		Sender:   send.NewMockCarrier(logger.WithField("component", "mock-carrier")),
		Logger:   logger,
	}
}

// NewPostgresDependencies собирает зависимости поверх PostgreSQL,
// применяя миграции при старте.
func NewPostgresDependencies(ctx context.Context, dsn string, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Dependencies{
		Entities: postgres.NewEntityRepository(store),
		Audit:    postgres.NewAuditRepository(store),
		Tables:   postgres.NewTableSource(store),
		Sender:   send.NewMockCarrier(logger.WithField("component", "mock-carrier")),
		Logger:   logger,
		store:    store,
	}, nil
}

// Ping проверяет доступность хранилища; in-memory вариант всегда здоров.
func (d *Dependencies) Ping(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	return d.store.Ping(ctx)
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() error {
	if d.store == nil {
		return nil
	}
	return d.store.Close()
}
