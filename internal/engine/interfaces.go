package engine

import (
	"context"
	"time"

	"github.com/dvloznov/finance-recurring/internal/domain"
)

// DefinitionRepository loads recurring definitions and persists their bookkeeping.
type DefinitionRepository interface {
	// LoadActiveDefinitions returns the user's definitions with IsActive set.
	LoadActiveDefinitions(ctx context.Context, userID string) ([]domain.RecurringExpenseDefinition, error)

	// SaveDefinitionUpdate advances a definition. Implementations must return
	// ErrStaleDefinition when the stored next occurrence differs from
	// upd.ExpectedNextOccurrence.
	SaveDefinitionUpdate(ctx context.Context, userID string, upd domain.DefinitionUpdate) error
}

// TransactionStore persists generated transactions and applies them to the
// budget aggregate of their category and period. Append must be idempotent on
// the transaction ID.
type TransactionStore interface {
	Append(ctx context.Context, tx domain.GeneratedTransaction) error
}

// Committer is implemented by stores that can persist the transaction, the
// budget change and the definition update in one atomic write. The Processor
// prefers it over separate Append/SaveDefinitionUpdate calls when available.
type Committer interface {
	Commit(ctx context.Context, tx domain.GeneratedTransaction, upd domain.DefinitionUpdate) error
}

// Locker provides single-flight execution per key.
type Locker interface {
	// Acquire takes the lock for key or returns ErrScanInProgress when it is
	// already held. The returned release func is safe to call once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// ReportArchiver stores finished run reports for later inspection.
type ReportArchiver interface {
	ArchiveReport(ctx context.Context, report *RunReport) error
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
