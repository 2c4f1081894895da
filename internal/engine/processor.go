package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultLockTTL bounds how long a crashed pass can keep a user locked.
const DefaultLockTTL = 10 * time.Minute

// ProcessorOptions holds the optional collaborators of a Processor. Zero values
// fall back to sensible defaults.
type ProcessorOptions struct {
	// Committer overrides the atomic write path. When nil, the transaction
	// store is used if it implements Committer and is also the definitions
	// repository.
	Committer Committer
	Locker    Locker
	Archiver  ReportArchiver
	Clock     Clock
	// Location decides which calendar day "today" is. Defaults to UTC.
	Location   *time.Location
	Retry      RetryPolicy
	MaxCatchUp int
	LockTTL    time.Duration
}

// Processor drives one recurring-expense pass per user: scan, materialize,
// persist, one occurrence at a time.
type Processor struct {
	definitions  DefinitionRepository
	transactions TransactionStore
	committer    Committer
	locker       Locker
	archiver     ReportArchiver
	clock        Clock
	location     *time.Location
	retry        RetryPolicy
	lockTTL      time.Duration
	scanner      Scanner
	materializer *Materializer
}

// NewProcessor wires a Processor.
func NewProcessor(definitions DefinitionRepository, transactions TransactionStore, opts ProcessorOptions) *Processor {
	p := &Processor{
		definitions:  definitions,
		transactions: transactions,
		committer:    opts.Committer,
		locker:       opts.Locker,
		archiver:     opts.Archiver,
		clock:        opts.Clock,
		location:     opts.Location,
		retry:        opts.Retry,
		lockTTL:      opts.LockTTL,
		scanner:      Scanner{MaxCatchUp: opts.MaxCatchUp},
	}

	if p.committer == nil {
		if c, ok := transactions.(Committer); ok && sameStore(definitions, transactions) {
			p.committer = c
		}
	}
	if p.locker == nil {
		p.locker = NewLocalLocker()
	}
	if p.clock == nil {
		p.clock = SystemClock{}
	}
	if p.location == nil {
		p.location = time.UTC
	}
	if p.retry.Attempts == 0 {
		p.retry = DefaultRetryPolicy
	}
	if p.lockTTL == 0 {
		p.lockTTL = DefaultLockTTL
	}
	p.materializer = NewMaterializer(p.clock)

	return p
}

// Today returns the current calendar date in the processor's location.
func (p *Processor) Today() civil.Date {
	return civil.DateOf(p.clock.Now().In(p.location))
}

// Preview computes the plan a pass would execute on asOf without writing
// anything. A zero asOf means today.
func (p *Processor) Preview(ctx context.Context, userID string, asOf civil.Date) (Plan, error) {
	if userID == "" {
		return Plan{}, errors.New("Preview: user id is required")
	}
	if asOf.IsZero() {
		asOf = p.Today()
	}

	defs, err := p.loadDefinitions(ctx, userID)
	if err != nil {
		return Plan{}, fmt.Errorf("Preview: %w", err)
	}

	return p.scanner.Scan(asOf, defs), nil
}

// Process runs one pass for userID. Failures on a single definition are
// recorded in the report and never stop the others; only lock, load and
// context errors are returned.
func (p *Processor) Process(ctx context.Context, userID string) (*RunReport, error) {
	if userID == "" {
		return nil, errors.New("Process: user id is required")
	}

	log := logger.FromContext(ctx).With().Str("user_id", userID).Logger()

	release, err := p.locker.Acquire(ctx, lockKey(userID), p.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("Process: acquire lock: %w", err)
	}
	defer release()

	report := &RunReport{
		RunID:       uuid.NewString(),
		UserID:      userID,
		AsOf:        p.Today(),
		StartedAt:   p.clock.Now().UTC(),
		Definitions: []DefinitionResult{},
	}
	log = log.With().Str("run_id", report.RunID).Logger()

	defs, err := p.loadDefinitions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	plan := p.scanner.Scan(report.AsOf, defs)
	log.Info().
		Str("as_of", report.AsOf.String()).
		Int("definitions", len(defs)).
		Int("due_occurrences", len(plan.Requests)).
		Int("scan_issues", len(plan.Issues)).
		Msg("Recurring scan planned")

	for _, issue := range plan.Issues {
		p.recordIssue(log, report, issue)
	}

	for _, group := range plan.ByDefinition() {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		p.applyDefinition(ctx, log, userID, group, report)
	}

	report.FinishedAt = p.clock.Now().UTC()

	if p.archiver != nil {
		if err := p.archiver.ArchiveReport(ctx, report); err != nil {
			log.Warn().Err(err).Msg("Failed to archive run report")
		}
	}

	log.Info().
		Int("generated", report.Generated).
		Int("issues", len(report.Issues)).
		Bool("cancelled", report.Cancelled).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Recurring scan finished")

	if report.Cancelled {
		return report, fmt.Errorf("Process: %w", ctx.Err())
	}
	return report, nil
}

func (p *Processor) loadDefinitions(ctx context.Context, userID string) ([]domain.RecurringExpenseDefinition, error) {
	var defs []domain.RecurringExpenseDefinition
	err := p.retry.Do(ctx, func() error {
		var err error
		defs, err = p.definitions.LoadActiveDefinitions(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}

	for i := range defs {
		if defs[i].UserID == "" {
			defs[i].UserID = userID
		}
	}
	return defs, nil
}

// applyDefinition persists the occurrences of one definition in order and
// stops at the first one that cannot be persisted, leaving the definition at
// its last durable state so the next pass resumes from there.
func (p *Processor) applyDefinition(ctx context.Context, log zerolog.Logger, userID string, group []MaterializationRequest, report *RunReport) {
	def := group[0].Definition
	result := DefinitionResult{
		DefinitionID:   def.ID,
		Title:          def.Title,
		Planned:        len(group),
		TotalGenerated: def.TotalGenerated,
	}
	defer func() { report.Definitions = append(report.Definitions, result) }()

	for _, req := range group {
		if ctx.Err() != nil {
			report.Cancelled = true
			return
		}

		tx, upd, err := p.materializer.Materialize(req)
		if err != nil {
			p.recordIssue(log, report, newIssue(def.ID, IssueMalformedDefinition, req.Occurrence, err))
			return
		}

		if err := p.persist(ctx, userID, tx, upd); err != nil {
			kind := IssuePersistenceFailure
			if errors.Is(err, ErrStaleDefinition) {
				kind = IssueStaleDefinition
			}
			p.recordIssue(log, report, newIssue(def.ID, kind, req.Occurrence, err))
			return
		}

		next := upd.NextOccurrence
		result.Generated++
		result.NextOccurrence = &next
		result.TotalGenerated = upd.TotalGenerated
		report.Generated++

		log.Debug().
			Str("definition_id", def.ID).
			Str("transaction_id", tx.ID).
			Str("occurrence", req.Occurrence.String()).
			Str("next_occurrence", next.String()).
			Msg("Materialized recurring occurrence")
	}
}

func (p *Processor) persist(ctx context.Context, userID string, tx domain.GeneratedTransaction, upd domain.DefinitionUpdate) error {
	if p.committer != nil {
		return p.retry.Do(ctx, func() error {
			return p.committer.Commit(ctx, tx, upd)
		})
	}

	if err := p.retry.Do(ctx, func() error {
		return p.transactions.Append(ctx, tx)
	}); err != nil {
		return fmt.Errorf("append transaction %s: %w", tx.ID, err)
	}

	if err := p.retry.Do(ctx, func() error {
		return p.definitions.SaveDefinitionUpdate(ctx, userID, upd)
	}); err != nil {
		return fmt.Errorf("save definition update: %w", err)
	}

	return nil
}

func (p *Processor) recordIssue(log zerolog.Logger, report *RunReport, issue Issue) {
	report.Issues = append(report.Issues, issue)

	event := log.Warn()
	if issue.Kind == IssuePersistenceFailure {
		event = log.Error()
	}
	event.
		Str("definition_id", issue.DefinitionID).
		Str("kind", string(issue.Kind)).
		Str("occurrence", issue.Occurrence).
		Msg(issue.Message)
}

// sameStore reports whether both roles are served by one store value.
func sameStore(definitions DefinitionRepository, transactions TransactionStore) bool {
	d, ok := transactions.(DefinitionRepository)
	return ok && d == definitions
}

func lockKey(userID string) string {
	return "recurring-scan:" + userID
}
