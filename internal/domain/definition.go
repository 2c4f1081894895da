package domain

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Frequency is the cadence of a recurring expense.
type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

// Frequencies lists every supported frequency in ascending period length.
var Frequencies = []Frequency{
	FrequencyDaily,
	FrequencyWeekly,
	FrequencyMonthly,
	FrequencyQuarterly,
	FrequencyYearly,
}

// ErrUnknownFrequency is returned for frequency values outside Frequencies.
var ErrUnknownFrequency = errors.New("unknown frequency")

// ParseFrequency normalizes s ("monthly", " Weekly ") into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("ParseFrequency: %q: %w", s, ErrUnknownFrequency)
	}
	return f, nil
}

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

func (f Frequency) String() string {
	return string(f)
}

// RecurringExpenseDefinition is a user-configured rule describing a repeating
// expense. It is owned by the user's account; the engine only ever advances
// NextOccurrence and TotalGenerated.
type RecurringExpenseDefinition struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Title  string          `json:"title"`
	Amount decimal.Decimal `json:"amount"`

	// Denormalized display attributes, copied onto generated transactions.
	Category      string `json:"category"`
	CategoryID    string `json:"category_id,omitempty"`
	CategoryIcon  string `json:"category_icon,omitempty"`
	CategoryColor string `json:"category_color,omitempty"`

	Wallet      string `json:"wallet,omitempty"`
	Description string `json:"description,omitempty"`

	Frequency Frequency `json:"frequency"`

	StartDate      civil.Date  `json:"start_date"`
	EndDate        *civil.Date `json:"end_date,omitempty"` // inclusive; nil means open-ended
	NextOccurrence civil.Date  `json:"next_occurrence,omitzero"`

	IsActive       bool  `json:"is_active"`
	TotalGenerated int64 `json:"total_generated"`
}

// EffectiveNextOccurrence is NextOccurrence, or StartDate for a definition
// that has never been scheduled.
func (d *RecurringExpenseDefinition) EffectiveNextOccurrence() civil.Date {
	if d.NextOccurrence.IsZero() {
		return d.StartDate
	}
	return d.NextOccurrence
}

// HasEnded reports whether on falls after the definition's end date.
func (d *RecurringExpenseDefinition) HasEnded(on civil.Date) bool {
	return d.EndDate != nil && on.After(*d.EndDate)
}

// Validate checks the structural invariants of a definition. It does not look
// at whether the definition is due.
func (d *RecurringExpenseDefinition) Validate() error {
	var errs []error

	if d.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if d.Amount.IsNegative() {
		errs = append(errs, fmt.Errorf("amount %s is negative", d.Amount))
	}
	if !d.Frequency.Valid() {
		errs = append(errs, fmt.Errorf("frequency %q: %w", d.Frequency, ErrUnknownFrequency))
	}
	if !d.StartDate.IsValid() {
		errs = append(errs, fmt.Errorf("start date %s is invalid", d.StartDate))
	}
	if !d.NextOccurrence.IsValid() {
		errs = append(errs, fmt.Errorf("next occurrence %s is invalid", d.NextOccurrence))
	} else if d.StartDate.IsValid() && d.NextOccurrence.Before(d.StartDate) {
		errs = append(errs, fmt.Errorf("next occurrence %s precedes start date %s", d.NextOccurrence, d.StartDate))
	}
	if d.EndDate != nil {
		if !d.EndDate.IsValid() {
			errs = append(errs, fmt.Errorf("end date %s is invalid", *d.EndDate))
		} else if d.StartDate.IsValid() && d.EndDate.Before(d.StartDate) {
			errs = append(errs, fmt.Errorf("end date %s precedes start date %s", *d.EndDate, d.StartDate))
		}
	}
	if d.TotalGenerated < 0 {
		errs = append(errs, fmt.Errorf("total generated %d is negative", d.TotalGenerated))
	}

	return errors.Join(errs...)
}

// DefinitionUpdate is the bookkeeping that accompanies one materialized
// occurrence. ExpectedNextOccurrence is the occurrence that was materialized;
// stores use it to refuse the write if another writer already advanced the
// definition.
type DefinitionUpdate struct {
	DefinitionID           string
	ExpectedNextOccurrence civil.Date
	NextOccurrence         civil.Date
	TotalGenerated         int64
}
