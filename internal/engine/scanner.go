package engine

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/recurrence"
)

// DefaultMaxCatchUp caps the occurrences emitted for a single definition in one scan.
const DefaultMaxCatchUp = 1000

// MaterializationRequest asks for one occurrence of a definition to be turned
// into a transaction. Sequence is the zero-based position of the occurrence
// within its definition's catch-up run.
type MaterializationRequest struct {
	Definition domain.RecurringExpenseDefinition
	Occurrence civil.Date
	Sequence   int
}

// Plan is the output of a scan: what to materialize, and what was skipped.
type Plan struct {
	AsOf     civil.Date
	Requests []MaterializationRequest
	Issues   []Issue
}

// ByDefinition groups the plan's requests per definition, keeping both the
// definition order and the chronological order of each group.
func (p Plan) ByDefinition() [][]MaterializationRequest {
	var groups [][]MaterializationRequest
	for i, req := range p.Requests {
		if i == 0 || p.Requests[i-1].Definition.ID != req.Definition.ID {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], req)
	}
	return groups
}

// Scanner decides which definitions are due.
type Scanner struct {
	// MaxCatchUp is the per-definition cap; zero means DefaultMaxCatchUp.
	MaxCatchUp int
}

// Scan runs a Scanner with the default cap.
func Scan(now civil.Date, definitions []domain.RecurringExpenseDefinition) Plan {
	return Scanner{}.Scan(now, definitions)
}

// Scan returns one request per due occurrence, oldest first within a
// definition, definitions ordered by ID. Inactive definitions and those whose
// next occurrence is after now or past their end date produce nothing.
func (s Scanner) Scan(now civil.Date, definitions []domain.RecurringExpenseDefinition) Plan {
	limit := s.MaxCatchUp
	if limit <= 0 {
		limit = DefaultMaxCatchUp
	}

	active := make([]domain.RecurringExpenseDefinition, 0, len(definitions))
	for _, def := range definitions {
		if def.IsActive {
			active = append(active, def)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	plan := Plan{AsOf: now}
	for _, def := range active {
		def.NextOccurrence = def.EffectiveNextOccurrence()

		if err := def.Validate(); err != nil {
			plan.Issues = append(plan.Issues, newIssue(def.ID, IssueMalformedDefinition, civil.Date{}, err))
			continue
		}

		if def.NextOccurrence.After(now) || def.HasEnded(def.NextOccurrence) {
			continue
		}

		until := now
		if def.EndDate != nil && def.EndDate.Before(until) {
			until = *def.EndDate
		}

		dates, truncated, err := recurrence.Occurrences(def.NextOccurrence, until, def.Frequency, limit)
		if err != nil {
			plan.Issues = append(plan.Issues, newIssue(def.ID, IssueMalformedDefinition, def.NextOccurrence, err))
			continue
		}

		for seq, occurrence := range dates {
			plan.Requests = append(plan.Requests, MaterializationRequest{
				Definition: def,
				Occurrence: occurrence,
				Sequence:   seq,
			})
		}

		if truncated {
			last := dates[len(dates)-1]
			plan.Issues = append(plan.Issues, newIssue(def.ID, IssueRunawayCatchUp, last,
				fmt.Errorf("stopped after %d occurrences (through %s), flagged for review", limit, last)))
		}
	}

	return plan
}
