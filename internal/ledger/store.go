package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/penny/core/logger"
)

// Store is the sqlx-backed ledger.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open connection pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureUser records u, refreshing its display names.
func (s *Store) EnsureUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, first_name = EXCLUDED.first_name, last_seen_at = now()`,
		u.ID, u.Username, u.FirstName)
	if err != nil {
		return fmt.Errorf("ledger: ensure user: %w", err)
	}
	return nil
}

// Categories lists the default categories plus the user's own.
func (s *Store) Categories(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `
		SELECT name FROM categories
		WHERE user_id IS NULL OR user_id = $1
		ORDER BY user_id NULLS FIRST, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: categories: %w", err)
	}
	return names, nil
}

// categoryID finds a category visible to userID by case-insensitive name,
// creating a user-owned one when none exists.
func categoryID(ctx context.Context, q sqlx.QueryerContext, userID int64, name string) (int64, error) {
	name = strings.TrimSpace(name)
	var id int64
	err := sqlx.GetContext(ctx, q, &id, `
		SELECT id FROM categories
		WHERE (user_id = $1 OR user_id IS NULL) AND lower(name) = lower($2)
		ORDER BY user_id NULLS LAST
		LIMIT 1`, userID, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	err = sqlx.GetContext(ctx, q, &id, `
		INSERT INTO categories (user_id, name) VALUES ($1, $2)
		ON CONFLICT (COALESCE(user_id, 0), lower(name)) DO UPDATE SET name = categories.name
		RETURNING id`, userID, name)
	return id, err
}

// AddExpense stores e, creating its category if needed.
func (s *Store) AddExpense(ctx context.Context, e Expense) (Expense, error) {
	if e.SpentAt.IsZero() {
		e.SpentAt = time.Now()
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		catID, err := categoryID(ctx, tx, e.UserID, e.Category)
		if err != nil {
			return err
		}
		return tx.GetContext(ctx, &e.ID, `
			INSERT INTO expenses (user_id, category_id, amount_cents, description, spent_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`, e.UserID, catID, e.AmountCents, e.Description, e.SpentAt)
	})
	if err != nil {
		return Expense{}, fmt.Errorf("ledger: add expense: %w", err)
	}
	logger.Info(ctx, logger.ComponentLedger, "ledger.expense",
		slog.String("status", "ok"),
		slog.Int64("id", e.ID),
		slog.Int64("amount_cents", e.AmountCents),
	)
	return e, nil
}

// RecentExpenses returns the user's latest expenses, newest first.
func (s *Store) RecentExpenses(ctx context.Context, userID int64, limit int) ([]Expense, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []Expense
	err := s.db.SelectContext(ctx, &out, `
		SELECT e.id, e.user_id, c.name AS category, e.amount_cents, e.description, e.spent_at
		FROM expenses e JOIN categories c ON c.id = e.category_id
		WHERE e.user_id = $1
		ORDER BY e.spent_at DESC, e.id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent expenses: %w", err)
	}
	return out, nil
}

// SpendingByCategory sums the user's expenses since the given time.
func (s *Store) SpendingByCategory(ctx context.Context, userID int64, since time.Time) ([]CategoryTotal, error) {
	var out []CategoryTotal
	err := s.db.SelectContext(ctx, &out, `
		SELECT c.name AS category, SUM(e.amount_cents) AS total_cents, COUNT(*) AS count
		FROM expenses e JOIN categories c ON c.id = e.category_id
		WHERE e.user_id = $1 AND e.spent_at >= $2
		GROUP BY c.name
		ORDER BY total_cents DESC, c.name`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("ledger: spending by category: %w", err)
	}
	return out, nil
}

// AddBudget stores b. EndDate is derived from Period when unset.
func (s *Store) AddBudget(ctx context.Context, b Budget) (Budget, error) {
	if b.StartDate.IsZero() {
		b.StartDate = time.Now()
	}
	b.StartDate = day(b.StartDate)
	if b.EndDate.IsZero() {
		b.EndDate = b.Period.End(b.StartDate)
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		catID, err := categoryID(ctx, tx, b.UserID, b.Category)
		if err != nil {
			return err
		}
		return tx.GetContext(ctx, &b.ID, `
			INSERT INTO budgets (user_id, category_id, amount_cents, period, start_date, end_date)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`, b.UserID, catID, b.AmountCents, string(b.Period), b.StartDate, b.EndDate)
	})
	if err != nil {
		return Budget{}, fmt.Errorf("ledger: add budget: %w", err)
	}
	logger.Info(ctx, logger.ComponentLedger, "ledger.budget",
		slog.String("status", "ok"),
		slog.Int64("id", b.ID),
		slog.String("period", string(b.Period)),
	)
	return b, nil
}

// Budgets returns budgets active on asOf with spending inside their window.
func (s *Store) Budgets(ctx context.Context, userID int64, asOf time.Time) ([]BudgetProgress, error) {
	var out []BudgetProgress
	err := s.db.SelectContext(ctx, &out, `
		SELECT b.id, b.user_id, c.name AS category, b.amount_cents, b.period, b.start_date, b.end_date,
			COALESCE((
				SELECT SUM(e.amount_cents) FROM expenses e
				WHERE e.user_id = b.user_id AND e.category_id = b.category_id
					AND e.spent_at >= b.start_date AND e.spent_at < b.end_date + 1
			), 0) AS spent_cents
		FROM budgets b JOIN categories c ON c.id = b.category_id
		WHERE b.user_id = $1 AND b.start_date <= $2 AND b.end_date >= $2
		ORDER BY b.end_date, c.name`, userID, day(asOf))
	if err != nil {
		return nil, fmt.Errorf("ledger: budgets: %w", err)
	}
	return out, nil
}

// AddGoal stores g; the category is optional.
func (s *Store) AddGoal(ctx context.Context, g Goal) (Goal, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var catID sql.NullInt64
		if g.Category != nil && strings.TrimSpace(*g.Category) != "" {
			id, err := categoryID(ctx, tx, g.UserID, *g.Category)
			if err != nil {
				return err
			}
			catID = sql.NullInt64{Int64: id, Valid: true}
		}
		return tx.GetContext(ctx, &g.ID, `
			INSERT INTO goals (user_id, name, target_cents, deadline, category_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`, g.UserID, g.Name, g.TargetCents, g.Deadline, catID)
	})
	if err != nil {
		return Goal{}, fmt.Errorf("ledger: add goal: %w", err)
	}
	logger.Info(ctx, logger.ComponentLedger, "ledger.goal",
		slog.String("status", "ok"),
		slog.Int64("id", g.ID),
	)
	return g, nil
}

// Goals lists the user's goals, nearest deadline first.
func (s *Store) Goals(ctx context.Context, userID int64) ([]Goal, error) {
	var out []Goal
	err := s.db.SelectContext(ctx, &out, `
		SELECT g.id, g.user_id, g.name, g.target_cents, g.saved_cents, g.deadline, c.name AS category
		FROM goals g LEFT JOIN categories c ON c.id = g.category_id
		WHERE g.user_id = $1
		ORDER BY g.deadline NULLS LAST, g.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: goals: %w", err)
	}
	return out, nil
}

// Summarize builds the month-to-date overview.
func (s *Store) Summarize(ctx context.Context, userID int64, now time.Time) (Summary, error) {
	y, m, _ := now.Date()
	monthStart := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	var sum Summary
	err := s.db.QueryRowxContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(amount_cents) FROM expenses WHERE user_id = $1 AND spent_at >= $2), 0),
			(SELECT COUNT(*) FROM expenses WHERE user_id = $1 AND spent_at >= $2),
			(SELECT COUNT(*) FROM budgets WHERE user_id = $1 AND start_date <= $3 AND end_date >= $3),
			(SELECT COUNT(*) FROM goals WHERE user_id = $1 AND saved_cents < target_cents)`,
		userID, monthStart, day(now)).Scan(&sum.MonthCents, &sum.MonthCount, &sum.ActiveBudgets, &sum.OpenGoals)
	if err != nil {
		return Summary{}, fmt.Errorf("ledger: summary: %w", err)
	}
	return sum, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
