package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/finance-recurring/internal/jobs"
)

// DefaultMaxFinished is how many completed or failed jobs a Store keeps by default.
const DefaultMaxFinished = 1000

// Store is an in-memory implementation of JobStore.
// It stores jobs in memory and is safe for concurrent use.
// Only the newest finished jobs are kept; pending and running jobs are never evicted.
// Data is lost on service restart.
type Store struct {
	mu          sync.RWMutex
	jobs        map[string]*jobs.ProcessRecurringJob
	maxFinished int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxFinished bounds the number of finished jobs kept. Zero or less keeps all of them.
func WithMaxFinished(n int) StoreOption {
	return func(s *Store) {
		s.maxFinished = n
	}
}

// NewStore creates a new in-memory job store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		jobs:        make(map[string]*jobs.ProcessRecurringJob),
		maxFinished: DefaultMaxFinished,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ProcessRecurringJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	if finished(jobCopy.Status) {
		s.evictLocked()
	}

	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ProcessRecurringJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ProcessRecurringJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.ProcessRecurringJob{}
	for _, job := range s.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}

		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].JobID < result[j].JobID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.ProcessRecurringJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// UpdateJobStatus implements the JobStore interface. Moving a job to a
// finished status stamps CompletedAt when the caller has not.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	if finished(status) {
		if job.CompletedAt == nil {
			now := time.Now()
			job.CompletedAt = &now
		}
		s.evictLocked()
	}

	return nil
}

// evictLocked drops the oldest finished jobs beyond maxFinished.
func (s *Store) evictLocked() {
	if s.maxFinished <= 0 {
		return
	}

	var done []*jobs.ProcessRecurringJob
	for _, job := range s.jobs {
		if finished(job.Status) {
			done = append(done, job)
		}
	}
	if len(done) <= s.maxFinished {
		return
	}

	sort.Slice(done, func(i, j int) bool {
		ti, tj := finishedAt(done[i]), finishedAt(done[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return done[i].JobID < done[j].JobID
	})
	for _, job := range done[:len(done)-s.maxFinished] {
		delete(s.jobs, job.JobID)
	}
}

func finished(status jobs.JobStatus) bool {
	return status == jobs.JobStatusCompleted || status == jobs.JobStatusFailed
}

func finishedAt(job *jobs.ProcessRecurringJob) time.Time {
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	return job.CreatedAt
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
