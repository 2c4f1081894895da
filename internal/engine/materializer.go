package engine

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/recurrence"
	"github.com/google/uuid"
)

// transactionNamespace seeds the name-based IDs of generated transactions.
var transactionNamespace = uuid.MustParse("6f1c2a9e-4b7d-5e3a-9c81-2d0f7b6a4e15")

// TransactionID returns the ID of the transaction materialized for the given
// definition and occurrence. The same pair always yields the same ID, so a
// retried write is recognised by the store as a duplicate.
func TransactionID(definitionID string, occurrence civil.Date) string {
	return uuid.NewSHA1(transactionNamespace, []byte(definitionID+"|"+occurrence.String())).String()
}

// Materializer turns materialization requests into transactions and the
// matching definition updates.
type Materializer struct {
	clock Clock
}

// NewMaterializer creates a Materializer stamping CreatedAt from clock.
func NewMaterializer(clock Clock) *Materializer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Materializer{clock: clock}
}

// Materialize builds the transaction for req.Occurrence and the update that
// moves the definition one step past it.
func (m *Materializer) Materialize(req MaterializationRequest) (domain.GeneratedTransaction, domain.DefinitionUpdate, error) {
	def := req.Definition

	next, err := recurrence.NextOccurrence(req.Occurrence, def.Frequency)
	if err != nil {
		return domain.GeneratedTransaction{}, domain.DefinitionUpdate{},
			&DefinitionError{DefinitionID: def.ID, Kind: ErrMalformedDefinition, Err: fmt.Errorf("Materialize: %w", err)}
	}

	tx := domain.GeneratedTransaction{
		ID:                TransactionID(def.ID, req.Occurrence),
		UserID:            def.UserID,
		Date:              req.Occurrence,
		DayOfWeek:         req.Occurrence.Weekday(),
		Title:             def.Title,
		Category:          def.Category,
		CategoryID:        categoryID(def),
		CategoryIcon:      def.CategoryIcon,
		CategoryColor:     def.CategoryColor,
		Wallet:            def.Wallet,
		Description:       def.Description,
		Amount:            def.Amount,
		IsIncome:          false,
		IsAutoGenerated:   true,
		RecurringSourceID: def.ID,
		CreatedAt:         m.clock.Now().UTC(),
	}

	upd := domain.DefinitionUpdate{
		DefinitionID:           def.ID,
		ExpectedNextOccurrence: req.Occurrence,
		NextOccurrence:         next,
		TotalGenerated:         def.TotalGenerated + int64(req.Sequence) + 1,
	}

	return tx, upd, nil
}

// categoryID falls back to a slug of the category name for definitions
// created before categories carried their own IDs.
func categoryID(def domain.RecurringExpenseDefinition) string {
	if def.CategoryID != "" {
		return def.CategoryID
	}
	return strings.Join(strings.Fields(strings.ToLower(def.Category)), "-")
}
