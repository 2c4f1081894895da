// Package api wires the HTTP routes of the recurring-expense service.
package api

import (
	"net/http"

	"github.com/dvloznov/finance-recurring/internal/api/handlers"
	"github.com/dvloznov/finance-recurring/internal/api/middleware"
	"github.com/dvloznov/finance-recurring/internal/jobs"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Dependencies are the services the routes delegate to.
type Dependencies struct {
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Previewer handlers.Previewer
	Ledger    handlers.Ledger
	Log       zerolog.Logger
}

// NewRouter registers every route and applies the middleware chain.
// Routes live on the root router so a method mismatch answers 405.
func NewRouter(deps Dependencies) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	recurring := handlers.NewRecurringHandler(deps.Publisher, deps.Previewer)
	r.HandleFunc("/api/users/{userID}/recurring/process", recurring.Process).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{userID}/recurring/preview", recurring.Preview).Methods(http.MethodGet)

	if deps.Ledger != nil {
		ledger := handlers.NewLedgerHandler(deps.Ledger)
		r.HandleFunc("/api/users/{userID}/transactions", ledger.ListTransactions).Methods(http.MethodGet)
		r.HandleFunc("/api/users/{userID}/budgets/{period}", ledger.GetBudget).Methods(http.MethodGet)
	}

	jobsHandler := handlers.NewJobsHandler(deps.JobStore)
	r.HandleFunc("/api/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{jobID}", jobsHandler.GetJob).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return middleware.Recovery(deps.Log)(
		middleware.RequestID(
			middleware.Logger(deps.Log)(
				middleware.CORS(r),
			),
		),
	)
}
