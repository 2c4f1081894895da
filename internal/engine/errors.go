package engine

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

var (
	// ErrMalformedDefinition marks a definition whose next occurrence cannot be
	// computed. It is skipped; other definitions are still processed.
	ErrMalformedDefinition = errors.New("malformed recurring definition")

	// ErrRunawayCatchUp marks a definition that is overdue by more periods than
	// the catch-up cap allows. The capped occurrences are still materialized.
	ErrRunawayCatchUp = errors.New("catch-up exceeded iteration cap")

	// ErrPersistenceFailure wraps a store error that survived every retry.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrStaleDefinition is returned by a DefinitionRepository when the stored
	// next occurrence no longer matches the one the update was computed from.
	ErrStaleDefinition = errors.New("definition was advanced by another writer")

	// ErrScanInProgress is returned by a Locker when another pass for the same
	// user holds the lock.
	ErrScanInProgress = errors.New("recurring scan already in progress")
)

// IssueKind classifies a per-definition problem found during a run.
type IssueKind string

const (
	IssueMalformedDefinition IssueKind = "MALFORMED_DEFINITION"
	IssueRunawayCatchUp      IssueKind = "RUNAWAY_CATCH_UP"
	IssuePersistenceFailure  IssueKind = "PERSISTENCE_FAILURE"
	IssueStaleDefinition     IssueKind = "STALE_DEFINITION"
)

var issueSentinels = map[IssueKind]error{
	IssueMalformedDefinition: ErrMalformedDefinition,
	IssueRunawayCatchUp:      ErrRunawayCatchUp,
	IssuePersistenceFailure:  ErrPersistenceFailure,
	IssueStaleDefinition:     ErrStaleDefinition,
}

// Issue is a non-fatal, user-visible diagnostic about one definition.
type Issue struct {
	DefinitionID string    `json:"definition_id"`
	Kind         IssueKind `json:"kind"`
	Occurrence   string    `json:"occurrence,omitempty"`
	Message      string    `json:"message"`
}

func newIssue(definitionID string, kind IssueKind, occurrence civil.Date, cause error) Issue {
	issue := Issue{
		DefinitionID: definitionID,
		Kind:         kind,
	}
	if occurrence.IsValid() {
		issue.Occurrence = occurrence.String()
	}
	if cause != nil {
		issue.Message = cause.Error()
	}
	return issue
}

// Err returns the issue as an error matching its sentinel with errors.Is.
func (i Issue) Err() error {
	return &DefinitionError{
		DefinitionID: i.DefinitionID,
		Kind:         issueSentinels[i.Kind],
		Err:          errors.New(i.Message),
	}
}

// DefinitionError ties an error to the definition it occurred on.
type DefinitionError struct {
	DefinitionID string
	Kind         error
	Err          error
}

func (e *DefinitionError) Error() string {
	if e.Err == nil || e.Err.Error() == "" {
		return fmt.Sprintf("definition %s: %v", e.DefinitionID, e.Kind)
	}
	return fmt.Sprintf("definition %s: %v: %v", e.DefinitionID, e.Kind, e.Err)
}

func (e *DefinitionError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
