package firestore

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/shopspring/decimal"
)

// definitionDoc is the Firestore document shape, shared with the mobile
// client: dates are YYYY-MM-DD strings and the amount is a double.
type definitionDoc struct {
	Title          string    `firestore:"title"`
	Amount         float64   `firestore:"amount"`
	Category       string    `firestore:"category"`
	CategoryID     string    `firestore:"categoryId,omitempty"`
	CategoryIcon   string    `firestore:"categoryIcon,omitempty"`
	CategoryColor  string    `firestore:"categoryColor,omitempty"`
	Wallet         string    `firestore:"wallet,omitempty"`
	Description    string    `firestore:"description,omitempty"`
	Frequency      string    `firestore:"frequency"`
	StartDate      string    `firestore:"startDate"`
	EndDate        string    `firestore:"endDate,omitempty"`
	NextOccurrence string    `firestore:"nextOccurrence,omitempty"`
	IsActive       bool      `firestore:"isActive"`
	TotalGenerated int64     `firestore:"totalGenerated"`
	UpdatedAt      time.Time `firestore:"updatedAt,serverTimestamp"`
}

func newDefinitionDoc(def domain.RecurringExpenseDefinition) definitionDoc {
	doc := definitionDoc{
		Title:          def.Title,
		Amount:         def.Amount.InexactFloat64(),
		Category:       def.Category,
		CategoryID:     def.CategoryID,
		CategoryIcon:   def.CategoryIcon,
		CategoryColor:  def.CategoryColor,
		Wallet:         def.Wallet,
		Description:    def.Description,
		Frequency:      string(def.Frequency),
		StartDate:      def.StartDate.String(),
		IsActive:       def.IsActive,
		TotalGenerated: def.TotalGenerated,
	}
	if def.EndDate != nil {
		doc.EndDate = def.EndDate.String()
	}
	if !def.NextOccurrence.IsZero() {
		doc.NextOccurrence = def.NextOccurrence.String()
	}
	return doc
}

// definition converts the document. Unparseable dates and frequencies are
// left invalid so the scanner reports the definition as malformed.
func (d definitionDoc) definition(id, userID string) domain.RecurringExpenseDefinition {
	def := domain.RecurringExpenseDefinition{
		ID:             id,
		UserID:         userID,
		Title:          d.Title,
		Amount:         decimal.NewFromFloat(d.Amount),
		Category:       d.Category,
		CategoryID:     d.CategoryID,
		CategoryIcon:   d.CategoryIcon,
		CategoryColor:  d.CategoryColor,
		Wallet:         d.Wallet,
		Description:    d.Description,
		Frequency:      domain.Frequency(d.Frequency),
		StartDate:      parseDate(d.StartDate),
		IsActive:       d.IsActive,
		TotalGenerated: d.TotalGenerated,
	}
	if f, err := domain.ParseFrequency(d.Frequency); err == nil {
		def.Frequency = f
	}
	if d.EndDate != "" {
		end := parseDate(d.EndDate)
		def.EndDate = &end
	}
	if d.NextOccurrence != "" {
		def.NextOccurrence = parseDate(d.NextOccurrence)
	}
	return def
}

func (d definitionDoc) effectiveNextOccurrence() string {
	if d.NextOccurrence == "" {
		return d.StartDate
	}
	return d.NextOccurrence
}

// parseDate returns an invalid (non-zero) date for malformed input, so an
// unparseable nextOccurrence is not mistaken for an unscheduled definition.
func parseDate(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{Year: -1}
	}
	return d
}
