package database

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrate brings the learned-join schema up to date from the migration files
// in dir. golang-migrate needs a database/sql handle rather than a pgx pool,
// so callers open one alongside the pool just for this call. Running against
// an already-current schema is a no-op.
func Migrate(sqlDB *sql.DB, dir string, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to init schema driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to load learned-join migrations from %s: %w", dir, err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("Failed to close migrator",
				zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	switch err := m.Up(); err {
	case nil:
		version, dirty, _ := m.Version()
		logger.Info("Learned-join schema migrated",
			zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	case migrate.ErrNoChange:
		logger.Debug("Learned-join schema already up to date")
		return nil
	default:
		return fmt.Errorf("failed to migrate learned-join schema: %w", err)
	}
}
