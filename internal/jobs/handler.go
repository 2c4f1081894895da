package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/logger"
)

// RecurringProcessor runs one recurring-expense pass for a user.
type RecurringProcessor interface {
	Process(ctx context.Context, userID string) (*engine.RunReport, error)
}

// NewProcessRecurringHandler returns a JobHandler that runs processor for the
// job's user and records the run outcome on the job. A pass already running
// for the same user fails the attempt so the queue retries it later.
func NewProcessRecurringHandler(processor RecurringProcessor) JobHandler {
	return func(ctx context.Context, job Job) error {
		processJob, ok := job.(*ProcessRecurringJob)
		if !ok {
			return Permanent(fmt.Errorf("unexpected job type: %T", job))
		}
		if processJob.UserID == "" {
			return Permanent(errors.New("job has no user ID"))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", processJob.JobID).
			Str("user_id", processJob.UserID).
			Str("trigger", string(processJob.Trigger)).
			Logger()

		log.Info().Msg("Processing recurring expenses")

		report, err := processor.Process(ctx, processJob.UserID)
		if report != nil {
			processJob.RunID = report.RunID
			processJob.Generated = report.Generated
			processJob.IssueCount = len(report.Issues)
		}
		if err != nil {
			if errors.Is(err, engine.ErrScanInProgress) {
				log.Info().Msg("Another pass holds the lock, retrying later")
			} else {
				log.Error().Err(err).Msg("Recurring pass failed")
			}
			return err
		}

		log.Info().
			Str("run_id", report.RunID).
			Int("generated", report.Generated).
			Int("issues", len(report.Issues)).
			Msg("Recurring pass completed")
		return nil
	}
}
