package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRow mirrors finance.transactions.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	BudgetPeriod    string     `bigquery:"budget_period"`    // REQUIRED, YYYY-MM
	DayOfWeek       string     `bigquery:"day_of_week"`      // REQUIRED

	Title  string   `bigquery:"title"`  // REQUIRED
	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC

	CategoryID    bigquery.NullString `bigquery:"category_id"`    // NULLABLE
	CategoryName  bigquery.NullString `bigquery:"category_name"`  // NULLABLE
	CategoryIcon  bigquery.NullString `bigquery:"category_icon"`  // NULLABLE
	CategoryColor bigquery.NullString `bigquery:"category_color"` // NULLABLE

	Wallet      bigquery.NullString `bigquery:"wallet"`      // NULLABLE
	Description bigquery.NullString `bigquery:"description"` // NULLABLE

	IsIncome          bool                `bigquery:"is_income"`           // REQUIRED
	IsAutoGenerated   bool                `bigquery:"is_auto_generated"`   // REQUIRED
	RecurringSourceID bigquery.NullString `bigquery:"recurring_source_id"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// NewTransactionRow converts a generated transaction into its row.
func NewTransactionRow(tx domain.GeneratedTransaction) *TransactionRow {
	return &TransactionRow{
		TransactionID:     tx.ID,
		UserID:            tx.UserID,
		TransactionDate:   tx.Date,
		BudgetPeriod:      domain.BudgetPeriod(tx.Date),
		DayOfWeek:         tx.DayOfWeek.String(),
		Title:             tx.Title,
		Amount:            tx.Amount.Rat(),
		CategoryID:        nullString(tx.CategoryID),
		CategoryName:      nullString(tx.Category),
		CategoryIcon:      nullString(tx.CategoryIcon),
		CategoryColor:     nullString(tx.CategoryColor),
		Wallet:            nullString(tx.Wallet),
		Description:       nullString(tx.Description),
		IsIncome:          tx.IsIncome,
		IsAutoGenerated:   tx.IsAutoGenerated,
		RecurringSourceID: nullString(tx.RecurringSourceID),
		CreatedTS:         tx.CreatedAt,
	}
}

// Transaction converts the row back into the domain type.
func (r *TransactionRow) Transaction() domain.GeneratedTransaction {
	tx := domain.GeneratedTransaction{
		ID:                r.TransactionID,
		UserID:            r.UserID,
		Date:              r.TransactionDate,
		DayOfWeek:         r.TransactionDate.Weekday(),
		Title:             r.Title,
		Category:          r.CategoryName.StringVal,
		CategoryID:        r.CategoryID.StringVal,
		CategoryIcon:      r.CategoryIcon.StringVal,
		CategoryColor:     r.CategoryColor.StringVal,
		Wallet:            r.Wallet.StringVal,
		Description:       r.Description.StringVal,
		IsIncome:          r.IsIncome,
		IsAutoGenerated:   r.IsAutoGenerated,
		RecurringSourceID: r.RecurringSourceID.StringVal,
		CreatedAt:         r.CreatedTS,
	}
	if r.Amount != nil {
		tx.Amount = decimal.NewFromBigRat(r.Amount, amountScale)
	}
	return tx
}

// amountScale is the number of fractional digits of BigQuery NUMERIC.
const amountScale = 9

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
