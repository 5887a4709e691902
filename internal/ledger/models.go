// Package ledger persists expenses, budgets and goals in Postgres.
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// User is a Telegram user known to the bot.
type User struct {
	ID        int64  `db:"id"`
	Username  string `db:"username"`
	FirstName string `db:"first_name"`
}

// Expense is one recorded spend. Amounts are kept in cents.
type Expense struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Category    string    `db:"category"`
	AmountCents int64     `db:"amount_cents"`
	Description string    `db:"description"`
	SpentAt     time.Time `db:"spent_at"`
}

// Period is a budget window length.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

// Periods lists the accepted budget periods in display order.
var Periods = []Period{Daily, Weekly, Monthly, Yearly}

// ParsePeriod accepts a period name case-insensitively.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Periods {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("ledger: unknown period %q", s)
}

// End returns the last day covered by a budget starting on start.
func (p Period) End(start time.Time) time.Time {
	start = day(start)
	switch p {
	case Daily:
		return start
	case Weekly:
		return start.AddDate(0, 0, 6)
	case Yearly:
		return start.AddDate(1, 0, -1)
	default:
		return start.AddDate(0, 1, -1)
	}
}

// Budget caps spending in a category over a period.
type Budget struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Category    string    `db:"category"`
	AmountCents int64     `db:"amount_cents"`
	Period      Period    `db:"period"`
	StartDate   time.Time `db:"start_date"`
	EndDate     time.Time `db:"end_date"`
}

// BudgetProgress is a budget with what has been spent against it.
type BudgetProgress struct {
	Budget
	SpentCents int64 `db:"spent_cents"`
}

// Remaining is the unspent amount; negative when over budget.
func (b BudgetProgress) Remaining() int64 { return b.AmountCents - b.SpentCents }

// Goal is a savings target.
type Goal struct {
	ID          int64      `db:"id"`
	UserID      int64      `db:"user_id"`
	Name        string     `db:"name"`
	TargetCents int64      `db:"target_cents"`
	SavedCents  int64      `db:"saved_cents"`
	Deadline    *time.Time `db:"deadline"`
	Category    *string    `db:"category"`
}

// CategoryTotal is spending summed per category.
type CategoryTotal struct {
	Category   string `db:"category"`
	TotalCents int64  `db:"total_cents"`
	Count      int    `db:"count"`
}

// Summary feeds the /hello overview.
type Summary struct {
	MonthCents    int64
	MonthCount    int
	ActiveBudgets int
	OpenGoals     int
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
