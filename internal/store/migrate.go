package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// EnsureExtensions attempts to create the extensions the schema relies on:
// pg_trgm for the title substring index and vector for semantic search. If
// the current user lacks superuser privileges, it checks whether each
// extension already exists so a DBA-provisioned database still works.
func EnsureExtensions(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	for _, ext := range []string{"pg_trgm", "vector"} {
		_, err := db.Exec(fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", ext))
		if err == nil {
			continue
		}

		if strings.Contains(err.Error(), "permission denied") {
			var exists bool
			qErr := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = $1)", ext).Scan(&exists)
			if qErr != nil {
				return fmt.Errorf("check %s: %w (original: %w)", ext, qErr, err)
			}
			if exists {
				continue
			}
			return fmt.Errorf("%s extension is not installed and the current database user lacks permission to create it; "+
				"ask your database admin to run: CREATE EXTENSION %s; (original: %w)", ext, ext, err)
		}

		return fmt.Errorf("create %s extension: %w", ext, err)
	}
	return nil
}

// RunMigrations runs SQL migrations from the given directory (e.g. "file://migrations") against the DSN.
func RunMigrations(dsn string, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate.Up: %w", err)
	}
	return nil
}
