package database

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaultsAndDSN(t *testing.T) {
	cfg := Config{Host: "db", User: "penny", Password: "p@ss word", Name: "penny"}
	assert.True(t, cfg.Enabled())
	cfg.Normalize()

	assert.Equal(t, "5432", cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Empty(t, cfg.MigrationsDir)
	assert.Equal(t, "user=penny password=p@ss word host=db port=5432 dbname=penny sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://penny:p%40ss%20word@db:5432/penny?sslmode=disable", cfg.URL())

	assert.False(t, Config{}.Enabled())
}

func TestMigrationFileSelection(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000002_goals.up.sql", "000001_ledger.up.sql", "000001_ledger.down.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}
	files := upFiles(os.DirFS(dir))
	assert.Equal(t, []string{"000001_ledger.up.sql", "000002_goals.up.sql"}, files)
	assert.Equal(t, []string{"000002_goals.up.sql"}, appliedBetween(files, 1, 2))
	assert.Empty(t, appliedBetween(files, 2, 2))
	assert.Nil(t, upFiles(os.DirFS(filepath.Join(dir, "missing"))))
}

func TestMigrationSource(t *testing.T) {
	embedded := fstest.MapFS{"000001_ledger.up.sql": {Data: []byte("--")}}

	_, label, err := Config{Migrations: embedded}.migrationSource()
	require.NoError(t, err)
	assert.Equal(t, "embedded", label)

	src, label, err := Config{MigrationsDir: "db/sql", Migrations: embedded}.migrationSource()
	require.NoError(t, err)
	assert.Equal(t, "db/sql", label)
	assert.NotEqual(t, embedded, src)

	_, _, err = Config{}.migrationSource()
	assert.Error(t, err)
}
