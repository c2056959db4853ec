package storage

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/tradegraph/backend/pkg/logger"
)

// Migrate brings the database schema up to date. Workers and the server both
// call this at startup; running it concurrently is safe because golang-migrate
// takes an advisory lock.
func Migrate(databaseURL, sourcePath string) error {
	if sourcePath == "" {
		sourcePath = "file://migrations"
	}

	m, err := migrate.New(sourcePath, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[Storage] Schema already up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("[Storage] Schema migrated", "version", version, "dirty", dirty)
	return nil
}
