package engine

import (
	"time"

	"cloud.google.com/go/civil"
)

// RunReport summarises one processing pass for a user.
type RunReport struct {
	RunID      string     `json:"run_id"`
	UserID     string     `json:"user_id"`
	AsOf       civil.Date `json:"as_of"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`

	// Generated counts transactions durably persisted in this pass.
	Generated   int                `json:"generated"`
	Definitions []DefinitionResult `json:"definitions"`
	Issues      []Issue            `json:"issues,omitempty"`

	// Cancelled is set when the context ended before every request was applied.
	Cancelled bool `json:"cancelled,omitempty"`
}

// DefinitionResult is the outcome for one due definition.
type DefinitionResult struct {
	DefinitionID   string      `json:"definition_id"`
	Title          string      `json:"title"`
	Planned        int         `json:"planned"`
	Generated      int         `json:"generated"`
	NextOccurrence *civil.Date `json:"next_occurrence,omitempty"`
	TotalGenerated int64       `json:"total_generated"`
}

// HasIssues reports whether any definition needs attention.
func (r *RunReport) HasIssues() bool {
	return len(r.Issues) > 0
}

// IssuesOfKind filters the report's issues.
func (r *RunReport) IssuesOfKind(kind IssueKind) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			out = append(out, issue)
		}
	}
	return out
}
