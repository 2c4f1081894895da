package inmemory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/shopspring/decimal"
)

func testDefinition() domain.RecurringExpenseDefinition {
	return domain.RecurringExpenseDefinition{
		ID:             "def-1",
		UserID:         "user-1",
		Title:          "Netflix",
		Amount:         decimal.RequireFromString("15.99"),
		Category:       "Entertainment",
		Frequency:      domain.FrequencyMonthly,
		StartDate:      civil.Date{Year: 2024, Month: time.January, Day: 10},
		NextOccurrence: civil.Date{Year: 2024, Month: time.March, Day: 10},
		IsActive:       true,
		TotalGenerated: 2,
	}
}

func testTransaction(id string, d civil.Date) domain.GeneratedTransaction {
	return domain.GeneratedTransaction{
		ID:                id,
		UserID:            "user-1",
		Date:              d,
		Category:          "Entertainment",
		Amount:            decimal.RequireFromString("15.99"),
		IsAutoGenerated:   true,
		RecurringSourceID: "def-1",
	}
}

func TestStore_LoadActiveDefinitions(t *testing.T) {
	s := NewStore()
	active := testDefinition()
	inactive := testDefinition()
	inactive.ID = "def-0"
	inactive.IsActive = false
	other := testDefinition()
	other.ID = "def-2"
	other.UserID = "user-2"

	for _, d := range []domain.RecurringExpenseDefinition{active, inactive, other} {
		if err := s.PutDefinition(context.Background(), d); err != nil {
			t.Fatalf("PutDefinition: %v", err)
		}
	}

	got, err := s.LoadActiveDefinitions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("LoadActiveDefinitions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "def-1" {
		t.Errorf("got %+v, want only def-1", got)
	}

	if err := s.PutDefinition(context.Background(), domain.RecurringExpenseDefinition{}); err == nil {
		t.Error("expected an error for a definition without ID")
	}
}

func TestStore_AppendIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tx := testTransaction("tx-1", civil.Date{Year: 2024, Month: time.March, Day: 10})

	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, tx); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if got := len(allTransactions(t, s)); got != 1 {
		t.Errorf("got %d transactions, want 1", got)
	}
	budget, _ := s.Budget(ctx, domain.BudgetKey{UserID: "user-1", Category: "Entertainment", Period: "2024-03"})
	if !budget.Equal(decimal.RequireFromString("15.99")) {
		t.Errorf("budget = %s, want 15.99", budget)
	}
}

func TestStore_SaveDefinitionUpdate(t *testing.T) {
	ctx := context.Background()
	march := civil.Date{Year: 2024, Month: time.March, Day: 10}
	april := civil.Date{Year: 2024, Month: time.April, Day: 10}

	tests := []struct {
		name    string
		userID  string
		upd     domain.DefinitionUpdate
		wantErr error
		anyErr  bool
	}{
		{
			name:   "advances",
			userID: "user-1",
			upd:    domain.DefinitionUpdate{DefinitionID: "def-1", ExpectedNextOccurrence: march, NextOccurrence: april, TotalGenerated: 3},
		},
		{
			name:    "stale",
			userID:  "user-1",
			upd:     domain.DefinitionUpdate{DefinitionID: "def-1", ExpectedNextOccurrence: april, NextOccurrence: april.AddMonths(1), TotalGenerated: 3},
			wantErr: engine.ErrStaleDefinition,
		},
		{
			name:   "unknown definition",
			userID: "user-1",
			upd:    domain.DefinitionUpdate{DefinitionID: "nope", ExpectedNextOccurrence: march, NextOccurrence: april},
			anyErr: true,
		},
		{
			name:   "other user",
			userID: "user-2",
			upd:    domain.DefinitionUpdate{DefinitionID: "def-1", ExpectedNextOccurrence: march, NextOccurrence: april},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			_ = s.PutDefinition(context.Background(), testDefinition())

			err := s.SaveDefinitionUpdate(ctx, tt.userID, tt.upd)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Fatal("expected an error")
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				def, _ := s.Definition("def-1")
				if def.NextOccurrence != april || def.TotalGenerated != 3 {
					t.Errorf("definition not updated: %+v", def)
				}
			}
		})
	}
}

func TestStore_CommitIsAllOrNothing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.PutDefinition(context.Background(), testDefinition())
	march := civil.Date{Year: 2024, Month: time.March, Day: 10}

	stale := domain.DefinitionUpdate{DefinitionID: "def-1", ExpectedNextOccurrence: march.AddDays(1), NextOccurrence: march.AddMonths(1)}
	if err := s.Commit(ctx, testTransaction("tx-1", march), stale); !errors.Is(err, engine.ErrStaleDefinition) {
		t.Fatalf("expected ErrStaleDefinition, got %v", err)
	}
	if got := len(allTransactions(t, s)); got != 0 {
		t.Errorf("rejected commit stored %d transactions", got)
	}

	ok := domain.DefinitionUpdate{DefinitionID: "def-1", ExpectedNextOccurrence: march, NextOccurrence: march.AddMonths(1), TotalGenerated: 3}
	if err := s.Commit(ctx, testTransaction("tx-1", march), ok); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := len(allTransactions(t, s)); got != 1 {
		t.Errorf("got %d transactions, want 1", got)
	}
	def, _ := s.Definition("def-1")
	if def.TotalGenerated != 3 {
		t.Errorf("TotalGenerated = %d, want 3", def.TotalGenerated)
	}
}

func TestStore_UnscheduledDefinitionAcceptsStartDate(t *testing.T) {
	s := NewStore()
	def := testDefinition()
	def.NextOccurrence = civil.Date{}
	_ = s.PutDefinition(context.Background(), def)

	upd := domain.DefinitionUpdate{
		DefinitionID:           def.ID,
		ExpectedNextOccurrence: def.StartDate,
		NextOccurrence:         def.StartDate.AddMonths(1),
		TotalGenerated:         3,
	}
	if err := s.SaveDefinitionUpdate(context.Background(), "user-1", upd); err != nil {
		t.Fatalf("SaveDefinitionUpdate: %v", err)
	}
}

func allTransactions(t *testing.T, s *Store) []domain.GeneratedTransaction {
	t.Helper()
	txs, err := s.Transactions(context.Background(), "user-1", civil.Date{}, civil.Date{})
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	return txs
}

func TestStore_TransactionsDateRange(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for i, d := range []civil.Date{
		{Year: 2024, Month: time.February, Day: 29},
		{Year: 2024, Month: time.March, Day: 10},
		{Year: 2024, Month: time.April, Day: 1},
	} {
		_ = s.Append(ctx, testTransaction(fmt.Sprintf("tx-%d", i), d))
	}

	tests := []struct {
		name     string
		from, to civil.Date
		want     int
	}{
		{"unbounded", civil.Date{}, civil.Date{}, 3},
		{"from only", civil.Date{Year: 2024, Month: time.March, Day: 10}, civil.Date{}, 2},
		{"to only", civil.Date{}, civil.Date{Year: 2024, Month: time.March, Day: 9}, 1},
		{"inclusive range", civil.Date{Year: 2024, Month: time.March, Day: 10}, civil.Date{Year: 2024, Month: time.April, Day: 1}, 2},
		{"empty", civil.Date{Year: 2025, Month: time.January, Day: 1}, civil.Date{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Transactions(ctx, "user-1", tt.from, tt.to)
			if err != nil {
				t.Fatalf("Transactions: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d transactions, want %d", len(got), tt.want)
			}
		})
	}
}
