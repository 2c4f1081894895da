package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/infra/inmemory"
	"github.com/dvloznov/finance-recurring/internal/jobs"
	jobsmem "github.com/dvloznov/finance-recurring/internal/jobs/inmemory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type mockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.ProcessRecurringJob) error
}

func (m *mockPublisher) PublishProcessRecurring(ctx context.Context, job *jobs.ProcessRecurringJob) error {
	return m.PublishFunc(ctx, job)
}

func (m *mockPublisher) Close() error { return nil }

type fixture struct {
	handler   http.Handler
	store     *inmemory.Store
	jobStore  *jobsmem.Store
	published []*jobs.ProcessRecurringJob
}

func newFixture(t *testing.T, publishErr error) *fixture {
	t.Helper()

	f := &fixture{
		store:    inmemory.NewStore(),
		jobStore: jobsmem.NewStore(),
	}
	start := civil.Date{Year: 2024, Month: time.January, Day: 15}
	if err := f.store.PutDefinition(context.Background(), domain.RecurringExpenseDefinition{
		ID:        "rent",
		UserID:    "user-1",
		Title:     "Rent",
		Amount:    decimal.RequireFromString("1200"),
		Category:  "Housing",
		Frequency: domain.FrequencyMonthly,
		StartDate: start,
		IsActive:  true,
	}); err != nil {
		t.Fatalf("PutDefinition: %v", err)
	}

	now := time.Date(2024, time.April, 20, 10, 0, 0, 0, time.UTC)
	processor := engine.NewProcessor(f.store, f.store, engine.ProcessorOptions{
		Clock: engine.ClockFunc(func() time.Time { return now }),
	})

	publisher := &mockPublisher{
		PublishFunc: func(ctx context.Context, job *jobs.ProcessRecurringJob) error {
			if publishErr != nil {
				return publishErr
			}
			job.JobID = "job-1"
			job.Status = jobs.JobStatusPending
			f.published = append(f.published, job)
			return f.jobStore.SaveJob(ctx, job)
		},
	}

	f.handler = NewRouter(Dependencies{
		Publisher: publisher,
		JobStore:  f.jobStore,
		Previewer: processor,
		Ledger:    f.store,
		Log:       zerolog.Nop(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(method, target, nil))

	var body map[string]interface{}
	if strings.HasPrefix(rr.Body.String(), "{") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return rr, body
}

func TestProcessEnqueuesJob(t *testing.T) {
	f := newFixture(t, nil)

	rr, body := f.do(t, http.MethodPost, "/api/users/user-1/recurring/process")

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	if body["job_id"] != "job-1" {
		t.Errorf("job_id = %v", body["job_id"])
	}
	if len(f.published) != 1 || f.published[0].UserID != "user-1" || f.published[0].Trigger != jobs.TriggerAPI {
		t.Errorf("published = %+v", f.published)
	}
}

func TestProcessPublishFailure(t *testing.T) {
	f := newFixture(t, errors.New("queue is closed"))

	rr, _ := f.do(t, http.MethodPost, "/api/users/user-1/recurring/process")

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantCount float64
		wantTotal string
	}{
		{name: "today", target: "/api/users/user-1/recurring/preview", wantCode: http.StatusOK, wantCount: 4, wantTotal: "4800"},
		{name: "as of", target: "/api/users/user-1/recurring/preview?as_of=2024-02-15", wantCode: http.StatusOK, wantCount: 2, wantTotal: "2400"},
		{name: "before start", target: "/api/users/user-1/recurring/preview?as_of=2023-12-31", wantCode: http.StatusOK, wantCount: 0, wantTotal: "0"},
		{name: "unknown user", target: "/api/users/nobody/recurring/preview", wantCode: http.StatusOK, wantCount: 0, wantTotal: "0"},
		{name: "bad date", target: "/api/users/user-1/recurring/preview?as_of=15-02-2024", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rr, body := f.do(t, http.MethodGet, tt.target)

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if body["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", body["count"], tt.wantCount)
			}
			if body["total_amount"] != tt.wantTotal {
				t.Errorf("total_amount = %v, want %s", body["total_amount"], tt.wantTotal)
			}
		})
	}
}

func TestPreviewDoesNotWrite(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/users/user-1/recurring/preview")

	txs, _ := f.store.Transactions(context.Background(), "user-1", civil.Date{}, civil.Date{})
	if len(txs) != 0 {
		t.Errorf("preview wrote %d transactions", len(txs))
	}
}

func TestLedgerRoutes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, d := range []civil.Date{{Year: 2024, Month: time.March, Day: 15}, {Year: 2024, Month: time.April, Day: 15}} {
		_ = f.store.Append(ctx, domain.GeneratedTransaction{
			ID:       "tx-" + d.String(),
			UserID:   "user-1",
			Date:     d,
			Title:    "Rent",
			Category: "Housing",
			Amount:   decimal.RequireFromString("1200"),
		})
	}

	t.Run("transactions in range", func(t *testing.T) {
		rr, _ := f.do(t, http.MethodGet, "/api/users/user-1/transactions?from=2024-04-01")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		var txs []map[string]interface{}
		if err := json.Unmarshal(rr.Body.Bytes(), &txs); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(txs) != 1 || txs[0]["date"] != "2024-04-15" {
			t.Errorf("transactions = %v", txs)
		}
	})

	t.Run("budget", func(t *testing.T) {
		rr, body := f.do(t, http.MethodGet, "/api/users/user-1/budgets/2024-03?category=Housing")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		if body["spent"] != "1200" {
			t.Errorf("spent = %v", body["spent"])
		}
	})

	for _, target := range []string{
		"/api/users/user-1/budgets/March?category=Housing",
		"/api/users/user-1/budgets/2024-03",
		"/api/users/user-1/transactions?to=yesterday",
	} {
		t.Run("bad request "+target, func(t *testing.T) {
			if rr, _ := f.do(t, http.MethodGet, target); rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestJobRoutes(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/api/users/user-1/recurring/process")

	rr, body := f.do(t, http.MethodGet, "/api/jobs?user_id=user-1")
	if rr.Code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("list: status %d body %v", rr.Code, body)
	}

	rr, body = f.do(t, http.MethodGet, "/api/jobs/job-1")
	if rr.Code != http.StatusOK || body["user_id"] != "user-1" {
		t.Errorf("get: status %d body %v", rr.Code, body)
	}

	if rr, _ := f.do(t, http.MethodGet, "/api/jobs/missing"); rr.Code != http.StatusNotFound {
		t.Errorf("missing job: status %d, want 404", rr.Code)
	}
}

func TestRouting(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/users/user-1/recurring/process", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/users/user-1/recurring/preview", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/jobs/job-1", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/users/user-1/transactions", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodOptions, "/api/jobs", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			if rr, _ := f.do(t, tt.method, tt.target); rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
