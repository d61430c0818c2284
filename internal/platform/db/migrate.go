package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus reports the schema version after a migration command.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate runs a migration command ("up", "down" or "version") against dsn.
// steps limits up/down to a number of migrations when positive.
func Migrate(dsn, command string, steps int) (MigrationStatus, error) {
	switch command {
	case "up", "down", "version":
	default:
		return MigrationStatus{}, fmt.Errorf("platform/db: unknown migration command %q", command)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("platform/db: migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(dsn))
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("platform/db: init migrate: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	}

	status := MigrationStatus{Changed: err == nil && command != "version"}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return status, fmt.Errorf("platform/db: migrate %s: %w", command, err)
	}

	version, dirty, verErr := m.Version()
	if verErr != nil && !errors.Is(verErr, migrate.ErrNilVersion) {
		return status, fmt.Errorf("platform/db: migrate version: %w", verErr)
	}
	status.Version = version
	status.Dirty = dirty
	return status, nil
}

// migrateURL rewrites a postgres DSN to the scheme registered by the pgx/v5 driver.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
