package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/finance-recurring/internal/engine"
)

type mockProcessor struct {
	ProcessFunc func(ctx context.Context, userID string) (*engine.RunReport, error)
}

func (m *mockProcessor) Process(ctx context.Context, userID string) (*engine.RunReport, error) {
	return m.ProcessFunc(ctx, userID)
}

type otherJob struct{}

func (otherJob) GetID() string        { return "other" }
func (otherJob) GetType() JobType     { return "other" }
func (otherJob) GetStatus() JobStatus { return JobStatusPending }

func TestProcessRecurringHandler(t *testing.T) {
	report := &engine.RunReport{
		RunID:     "run-1",
		UserID:    "user-1",
		Generated: 3,
		Issues:    []engine.Issue{{DefinitionID: "bad", Kind: engine.IssueMalformedDefinition}},
	}

	tests := []struct {
		name          string
		job           Job
		processErr    error
		wantErr       bool
		wantPermanent bool
		wantRunID     string
	}{
		{
			name:      "records the run outcome",
			job:       &ProcessRecurringJob{JobID: "job-1", UserID: "user-1"},
			wantRunID: "run-1",
		},
		{
			name:       "lock held is retryable",
			job:        &ProcessRecurringJob{JobID: "job-1", UserID: "user-1"},
			processErr: engine.ErrScanInProgress,
			wantErr:    true,
		},
		{
			name:          "missing user is permanent",
			job:           &ProcessRecurringJob{JobID: "job-1"},
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "wrong job type is permanent",
			job:           otherJob{},
			wantErr:       true,
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &mockProcessor{
				ProcessFunc: func(ctx context.Context, userID string) (*engine.RunReport, error) {
					if tt.processErr != nil {
						return nil, tt.processErr
					}
					return report, nil
				},
			}

			err := NewProcessRecurringHandler(processor)(context.Background(), tt.job)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			var permanent *PermanentError
			if errors.As(err, &permanent) != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v", !tt.wantPermanent, tt.wantPermanent)
			}

			if job, ok := tt.job.(*ProcessRecurringJob); ok && tt.wantRunID != "" {
				if job.RunID != tt.wantRunID || job.Generated != 3 || job.IssueCount != 1 {
					t.Errorf("job not updated: %+v", job)
				}
			}
		})
	}
}
