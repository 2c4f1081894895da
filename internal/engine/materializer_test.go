package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
)

func fixedClock() engine.Clock {
	return engine.ClockFunc(func() time.Time {
		return time.Date(2024, time.April, 20, 10, 0, 0, 0, time.UTC)
	})
}

func TestMaterialize(t *testing.T) {
	def := definition("rent", domain.FrequencyMonthly, "2024-01-31")
	def.TotalGenerated = 7
	m := engine.NewMaterializer(fixedClock())

	tx, upd, err := m.Materialize(engine.MaterializationRequest{
		Definition: def,
		Occurrence: date("2024-01-31"),
		Sequence:   2,
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if tx.ID != engine.TransactionID("rent", date("2024-01-31")) {
		t.Errorf("ID = %s, want deterministic ID", tx.ID)
	}
	if tx.Date != date("2024-01-31") {
		t.Errorf("Date = %s, want 2024-01-31", tx.Date)
	}
	if tx.DayOfWeek != time.Wednesday {
		t.Errorf("DayOfWeek = %s, want Wednesday", tx.DayOfWeek)
	}
	if !tx.Amount.Equal(def.Amount) {
		t.Errorf("Amount = %s, want %s", tx.Amount, def.Amount)
	}
	if tx.IsIncome {
		t.Error("generated transaction must be an expense")
	}
	if !tx.IsAutoGenerated {
		t.Error("generated transaction must be marked auto-generated")
	}
	if tx.RecurringSourceID != "rent" {
		t.Errorf("RecurringSourceID = %s, want rent", tx.RecurringSourceID)
	}
	if tx.UserID != "user-1" || tx.Title != def.Title || tx.Category != "Utilities" ||
		tx.CategoryIcon != "bolt" || tx.CategoryColor != "#FFAA00" || tx.Wallet != "Main" || tx.Description != "auto" {
		t.Errorf("display attributes not copied: %+v", tx)
	}
	if tx.CategoryID != "utilities" {
		t.Errorf("CategoryID = %q, want slug fallback %q", tx.CategoryID, "utilities")
	}
	if want := time.Date(2024, time.April, 20, 10, 0, 0, 0, time.UTC); !tx.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %s, want %s", tx.CreatedAt, want)
	}

	if upd.DefinitionID != "rent" {
		t.Errorf("update DefinitionID = %s", upd.DefinitionID)
	}
	if upd.ExpectedNextOccurrence != date("2024-01-31") {
		t.Errorf("ExpectedNextOccurrence = %s", upd.ExpectedNextOccurrence)
	}
	if upd.NextOccurrence != date("2024-02-29") {
		t.Errorf("NextOccurrence = %s, want 2024-02-29", upd.NextOccurrence)
	}
	if upd.TotalGenerated != 10 {
		t.Errorf("TotalGenerated = %d, want 10", upd.TotalGenerated)
	}
}

func TestMaterialize_KeepsExplicitCategoryID(t *testing.T) {
	def := definition("x", domain.FrequencyDaily, "2024-01-01")
	def.Category = "Eating Out"
	def.CategoryID = "cat-42"

	tx, _, err := engine.NewMaterializer(fixedClock()).Materialize(engine.MaterializationRequest{
		Definition: def,
		Occurrence: date("2024-01-01"),
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if tx.CategoryID != "cat-42" {
		t.Errorf("CategoryID = %q, want cat-42", tx.CategoryID)
	}
}

func TestMaterialize_UnknownFrequency(t *testing.T) {
	def := definition("x", domain.Frequency("FORTNIGHTLY"), "2024-01-01")

	_, _, err := engine.NewMaterializer(fixedClock()).Materialize(engine.MaterializationRequest{
		Definition: def,
		Occurrence: date("2024-01-01"),
	})
	if !errors.Is(err, engine.ErrMalformedDefinition) {
		t.Fatalf("expected ErrMalformedDefinition, got %v", err)
	}
	var defErr *engine.DefinitionError
	if !errors.As(err, &defErr) || defErr.DefinitionID != "x" {
		t.Errorf("expected DefinitionError for x, got %v", err)
	}
}

func TestTransactionID(t *testing.T) {
	a := engine.TransactionID("def-1", date("2024-03-15"))
	if a != engine.TransactionID("def-1", date("2024-03-15")) {
		t.Error("TransactionID is not deterministic")
	}
	if a == engine.TransactionID("def-1", date("2024-04-15")) {
		t.Error("different occurrences share an ID")
	}
	if a == engine.TransactionID("def-2", date("2024-03-15")) {
		t.Error("different definitions share an ID")
	}
}
