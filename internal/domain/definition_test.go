package domain

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		input   string
		want    Frequency
		wantErr bool
	}{
		{"DAILY", FrequencyDaily, false},
		{"weekly", FrequencyWeekly, false},
		{"  Monthly ", FrequencyMonthly, false},
		{"quarterly", FrequencyQuarterly, false},
		{"Yearly", FrequencyYearly, false},
		{"fortnightly", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFrequency(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownFrequency) {
					t.Fatalf("expected ErrUnknownFrequency, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFrequency(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func validDefinition() RecurringExpenseDefinition {
	start := civil.Date{Year: 2024, Month: 1, Day: 15}
	return RecurringExpenseDefinition{
		ID:             "def-1",
		UserID:         "user-1",
		Title:          "Rent",
		Amount:         decimal.RequireFromString("950.00"),
		Category:       "Housing",
		Frequency:      FrequencyMonthly,
		StartDate:      start,
		NextOccurrence: start,
		IsActive:       true,
	}
}

func TestRecurringExpenseDefinition_Validate(t *testing.T) {
	before := civil.Date{Year: 2023, Month: 12, Day: 1}

	tests := []struct {
		name    string
		mutate  func(d *RecurringExpenseDefinition)
		wantErr bool
	}{
		{"valid", func(d *RecurringExpenseDefinition) {}, false},
		{"zero amount is allowed", func(d *RecurringExpenseDefinition) { d.Amount = decimal.Zero }, false},
		{"missing id", func(d *RecurringExpenseDefinition) { d.ID = "" }, true},
		{"negative amount", func(d *RecurringExpenseDefinition) { d.Amount = decimal.NewFromInt(-5) }, true},
		{"unknown frequency", func(d *RecurringExpenseDefinition) { d.Frequency = "HOURLY" }, true},
		{"next before start", func(d *RecurringExpenseDefinition) { d.NextOccurrence = before }, true},
		{"end before start", func(d *RecurringExpenseDefinition) { d.EndDate = &before }, true},
		{"invalid next", func(d *RecurringExpenseDefinition) { d.NextOccurrence = civil.Date{Year: 2024, Month: 2, Day: 31} }, true},
		{"negative total", func(d *RecurringExpenseDefinition) { d.TotalGenerated = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDefinition()
			tt.mutate(&d)
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecurringExpenseDefinition_HasEnded(t *testing.T) {
	d := validDefinition()
	if d.HasEnded(civil.Date{Year: 2099, Month: 1, Day: 1}) {
		t.Error("open-ended definition should never end")
	}

	end := civil.Date{Year: 2024, Month: 3, Day: 1}
	d.EndDate = &end
	if d.HasEnded(end) {
		t.Error("end date is inclusive")
	}
	if !d.HasEnded(end.AddDays(1)) {
		t.Error("expected definition to have ended the day after its end date")
	}
}

func TestBudgetPeriod(t *testing.T) {
	if got := BudgetPeriod(civil.Date{Year: 2024, Month: 2, Day: 29}); got != "2024-02" {
		t.Errorf("BudgetPeriod = %q, want 2024-02", got)
	}
}
