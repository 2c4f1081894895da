package bigquery

import (
	"math/big"
	"time"
)

// BudgetRow mirrors finance.budgets: one row per user, category and month.
type BudgetRow struct {
	UserID    string    `bigquery:"user_id"`    // REQUIRED
	Category  string    `bigquery:"category"`   // REQUIRED
	Period    string    `bigquery:"period"`     // REQUIRED, YYYY-MM
	Spent     *big.Rat  `bigquery:"spent"`      // REQUIRED NUMERIC
	UpdatedTS time.Time `bigquery:"updated_ts"` // REQUIRED
}
