// Package scheduler enqueues a recurring-expense pass for every configured
// user at start-up and then daily at local midnight.
package scheduler

import (
	"context"
	"time"

	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/jobs"
	"github.com/dvloznov/finance-recurring/internal/logger"
)

// Scheduler publishes ProcessRecurringJobs on a daily schedule.
type Scheduler struct {
	publisher  jobs.Publisher
	users      []string
	location   *time.Location
	clock      engine.Clock
	runOnStart bool

	// after is time.After, replaceable in tests.
	after func(d time.Duration) <-chan time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used to compute the next run.
func WithClock(clock engine.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithRunOnStart enqueues a pass for every user as soon as Run starts.
func WithRunOnStart(enabled bool) Option {
	return func(s *Scheduler) {
		s.runOnStart = enabled
	}
}

// New creates a Scheduler for users. Midnight is computed in loc.
func New(publisher jobs.Publisher, users []string, loc *time.Location, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		publisher: publisher,
		users:     users,
		location:  loc,
		clock:     engine.SystemClock{},
		after:     time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextRun returns the first local midnight strictly after now.
func NextRun(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// Run blocks until ctx is done, enqueueing a pass for every user at each
// local midnight.
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.FromContext(ctx)

	if len(s.users) == 0 {
		log.Warn().Msg("No users configured, scheduler is idle")
	}

	if s.runOnStart {
		s.EnqueueAll(ctx)
	}

	for {
		now := s.clock.Now()
		next := NextRun(now, s.location)
		wait := next.Sub(now)

		log.Info().
			Time("next_run", next).
			Dur("wait", wait).
			Msg("Next recurring pass scheduled")

		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopped")
			return
		case <-s.after(wait):
		}

		s.EnqueueAll(ctx)
	}
}

// EnqueueAll publishes one job per configured user and returns how many were
// accepted. Publish failures are logged and do not stop the other users.
func (s *Scheduler) EnqueueAll(ctx context.Context) int {
	log := logger.FromContext(ctx)

	var enqueued int
	for _, userID := range s.users {
		job := &jobs.ProcessRecurringJob{
			UserID:  userID,
			Trigger: jobs.TriggerScheduler,
		}
		if err := s.publisher.PublishProcessRecurring(ctx, job); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue scheduled pass")
			continue
		}
		enqueued++
		log.Debug().Str("user_id", userID).Str("job_id", job.JobID).Msg("Enqueued scheduled pass")
	}

	log.Info().Int("enqueued", enqueued).Int("users", len(s.users)).Msg("Scheduled passes enqueued")
	return enqueued
}
