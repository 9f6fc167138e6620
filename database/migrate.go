package database

import (
	"fmt"
	"log/slog"
)

// MigrateUp applies every pending migration
func MigrateUp(connString string) error {
	m, err := GetMigrate(connString)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := ignoreNoChange(m.Up()); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logVersion(m)
	return nil
}

// MigrateDown rolls back the given number of migrations.
// A non-positive steps value rolls back every migration.
func MigrateDown(connString string, steps int) error {
	m, err := GetMigrate(connString)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if steps <= 0 {
		err = m.Down()
	} else {
		err = m.Steps(-steps)
	}
	if err := ignoreNoChange(err); err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}

	logVersion(m)
	return nil
}

func logVersion(m Migrator) {
	version, dirty, err := m.Version()
	if err != nil {
		slog.Info("Database schema has no applied migrations")
		return
	}
	slog.Info("Database schema version", "version", version, "dirty", dirty)
}

func closeMigrator(m Migrator) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		slog.Warn("Failed to close migrator", "source_error", srcErr, "database_error", dbErr)
	}
}
