package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/penny/core/bootstrap"
	"github.com/m3rciful/penny/core/logger"
)

// DefaultCategories are visible to every user and offered as buttons.
var DefaultCategories = []string{
	"Food", "Transport", "Housing", "Utilities", "Health", "Entertainment", "Shopping", "Other",
}

// CategorySeeder installs DefaultCategories as shared rows.
var CategorySeeder = bootstrap.SeederFunc(func(ctx context.Context, storage bootstrap.Storage) error {
	db, ok := storage.(*sqlx.DB)
	if !ok {
		return fmt.Errorf("ledger: seeder needs *sqlx.DB, got %T", storage)
	}
	added := 0
	for _, name := range DefaultCategories {
		res, err := db.ExecContext(ctx, `
			INSERT INTO categories (user_id, name) VALUES (NULL, $1)
			ON CONFLICT (COALESCE(user_id, 0), lower(name)) DO NOTHING`, name)
		if err != nil {
			return fmt.Errorf("ledger: seed category %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	logger.Info(ctx, logger.ComponentSeed, "seed.categories",
		slog.String("status", "ok"),
		slog.Int("added", added),
		slog.Int("total", len(DefaultCategories)),
	)
	return nil
})
