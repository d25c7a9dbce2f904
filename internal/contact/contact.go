package contact

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"reconcile/internal/contact/handler"
	"reconcile/internal/contact/service"
	contactstore "reconcile/internal/contact/store/contact"
	"reconcile/internal/platform/config"
	"reconcile/internal/platform/database"
)

// Service exposes contact reconciliation.
type Service = service.Service

// Handler wires HTTP endpoints to the contact service.
type Handler = handler.Handler

// Store is a contact store that also provides its own transactions, plus the
// maintenance operations contactctl exposes.
type Store interface {
	service.Store
	service.StoreTx
	SoftDelete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// NewService constructs the contact service over store.
func NewService(store service.Store, opts ...service.Option) *Service {
	return service.New(store, opts...)
}

// NewHandler constructs an HTTP handler for the public contact routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}

// OpenStore builds the backend named by cfg.Store and applies its schema.
// The returned close func releases the underlying database, if any.
func OpenStore(ctx context.Context, cfg config.Server, logger *slog.Logger) (Store, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Info("using in-memory contact store")
		return contactstore.NewInMemory(), func() error { return nil }, nil

	case config.StoreSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := migrate(ctx, db, database.DialectSQLite); err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite contact store", "path", cfg.SQLitePath)
		return contactstore.NewSQLite(db), db.Close, nil

	case config.StorePostgres:
		db, err := database.OpenPostgres(ctx, database.PostgresConfig{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := migrate(ctx, db, database.DialectPostgres); err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres contact store")
		return contactstore.NewPostgres(db), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown contact store %q", cfg.Store)
	}
}

func migrate(ctx context.Context, db *sql.DB, dialect database.Dialect) error {
	if err := database.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return err
	}
	return nil
}
