package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// GeneratedTransaction is an expense produced from one occurrence of a
// recurring expense definition. Once handed to a TransactionStore it is an
// independent entity; editing or deleting it never touches the source definition.
type GeneratedTransaction struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Date      civil.Date   `json:"date"`        // the occurrence being materialized, not the discovery date
	DayOfWeek time.Weekday `json:"day_of_week"` // derived from Date

	Title         string `json:"title"`
	Category      string `json:"category"`
	CategoryID    string `json:"category_id,omitempty"`
	CategoryIcon  string `json:"category_icon,omitempty"`
	CategoryColor string `json:"category_color,omitempty"`
	Wallet        string `json:"wallet,omitempty"`
	Description   string `json:"description,omitempty"`

	Amount decimal.Decimal `json:"amount"`

	IsIncome        bool `json:"is_income"`         // always false for recurring expenses
	IsAutoGenerated bool `json:"is_auto_generated"` // always true

	// RecurringSourceID points back at the definition. Non-owning.
	RecurringSourceID string `json:"recurring_source_id"`

	CreatedAt time.Time `json:"created_at"`
}

// BudgetPeriod returns the budget bucket ("YYYY-MM") a transaction dated d counts against.
func BudgetPeriod(d civil.Date) string {
	return d.In(time.UTC).Format("2006-01")
}

// BudgetKey identifies one budget aggregate.
type BudgetKey struct {
	UserID   string
	Category string
	Period   string // see BudgetPeriod
}

// BudgetKeyFor returns the budget aggregate a transaction counts against.
func BudgetKeyFor(tx GeneratedTransaction) BudgetKey {
	return BudgetKey{
		UserID:   tx.UserID,
		Category: tx.Category,
		Period:   BudgetPeriod(tx.Date),
	}
}
