package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/penny/core/logger"
)

const (
	migrateWait   = 30 * time.Second
	filesInLogMax = 6
)

// RunMigrations waits for Postgres and applies every pending up migration.
func RunMigrations(cfg Config) error {
	cfg.Normalize()
	ctx := logger.Background()

	src, label, err := cfg.migrationSource()
	if err != nil {
		return err
	}
	files := upFiles(src)
	preview, cut := logger.SummarizeStrings(files, filesInLogMax)
	logger.Debug(ctx, logger.ComponentMigrate, "migrate.resolve",
		slog.String("source", label),
		slog.Int("count", len(files)),
		slog.String("files", preview),
		slog.Bool("truncated", cut),
	)

	if err := WaitForPostgres(ctx, cfg.DSN(), migrateWait); err != nil {
		logger.Error(ctx, logger.ComponentMigrate, "db.wait", slog.String("status", "fail"), slog.Any("err", err))
		return fmt.Errorf("database not ready: %w", err)
	}

	driver, err := iofs.New(src, ".")
	if err != nil {
		return fmt.Errorf("read migrations from %s: %w", label, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", driver, cfg.URL())
	if err != nil {
		logger.Error(ctx, logger.ComponentMigrate, "migrate.init", slog.String("status", "fail"), slog.Any("err", err))
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := time.Since(start)
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, logger.ComponentMigrate, "migrate.apply",
			slog.String("status", "fail"),
			slog.Any("err", upErr),
			slog.Duration("duration", took),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}
	to, _, _ := m.Version()

	applied := appliedBetween(files, uint64(from), uint64(to))
	preview, cut = logger.SummarizeStrings(applied, filesInLogMax)
	logger.Info(ctx, logger.ComponentMigrate, "migrate.summary",
		slog.String("status", "ok"),
		slog.String("source", label),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.String("files", preview),
		slog.Bool("truncated", cut),
		slog.Duration("duration", took),
	)
	return nil
}

// upFiles lists the *.up.sql names at the root of src in order.
func upFiles(src fs.FS) []string {
	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// appliedBetween returns the files whose version lies in (from, to].
func appliedBetween(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		prefix, _, _ := strings.Cut(f, "_")
		if v, err := strconv.ParseUint(prefix, 10, 64); err == nil && v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
