package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURLRewritesScheme(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", migrateURL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	require.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	require.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	_, err := Migrate("pgx5://127.0.0.1:1/none", "sideways", 0)
	require.Error(t, err)
}
