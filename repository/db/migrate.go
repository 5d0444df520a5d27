package db

import (
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migration applies every pending up migration found in migratePath.
func Migration(dbDSN, migratePath string) error {
	if dbDSN == "" {
		return fmt.Errorf("migration: empty database DSN")
	}
	if migratePath == "" {
		return fmt.Errorf("migration: empty migrations path")
	}

	absPath, err := filepath.Abs(migratePath)
	if err != nil {
		return fmt.Errorf("migration: resolve path: %w", err)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(absPath), dbDSN)
	if err != nil {
		return fmt.Errorf("migration: init: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration: up: %w", err)
	}
	return nil
}
