package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/api/middleware"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/jobs"
	"github.com/dvloznov/finance-recurring/internal/logger"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// Previewer computes the plan a pass would execute without writing anything.
type Previewer interface {
	Preview(ctx context.Context, userID string, asOf civil.Date) (engine.Plan, error)
}

// Ledger reads generated transactions and budget aggregates.
type Ledger interface {
	Transactions(ctx context.Context, userID string, from, to civil.Date) ([]domain.GeneratedTransaction, error)
	Budget(ctx context.Context, key domain.BudgetKey) (decimal.Decimal, error)
}

// RecurringHandler handles recurring-expense processing endpoints.
type RecurringHandler struct {
	publisher jobs.Publisher
	previewer Previewer
}

// NewRecurringHandler creates a new recurring handler.
func NewRecurringHandler(publisher jobs.Publisher, previewer Previewer) *RecurringHandler {
	return &RecurringHandler{
		publisher: publisher,
		previewer: previewer,
	}
}

// Process handles POST /api/users/{userID}/recurring/process
func (h *RecurringHandler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mux.Vars(r)["userID"]

	job := &jobs.ProcessRecurringJob{
		UserID:  userID,
		Trigger: jobs.TriggerAPI,
	}
	if err := h.publisher.PublishProcessRecurring(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue recurring pass")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue recurring pass")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.JobID,
		"status":  job.Status,
		"user_id": userID,
	})
}

// previewItem is one planned occurrence in a preview response.
type previewItem struct {
	DefinitionID string          `json:"definition_id"`
	Title        string          `json:"title"`
	Occurrence   civil.Date      `json:"occurrence"`
	Sequence     int             `json:"sequence"`
	Amount       decimal.Decimal `json:"amount"`
	Category     string          `json:"category"`
}

// Preview handles GET /api/users/{userID}/recurring/preview?as_of=YYYY-MM-DD
func (h *RecurringHandler) Preview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mux.Vars(r)["userID"]

	asOf, err := parseDateParam(r, "as_of")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid as_of format")
		return
	}

	plan, err := h.previewer.Preview(ctx, userID, asOf)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to preview recurring pass")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to preview recurring pass")
		return
	}

	items := make([]previewItem, 0, len(plan.Requests))
	total := decimal.Zero
	for _, req := range plan.Requests {
		items = append(items, previewItem{
			DefinitionID: req.Definition.ID,
			Title:        req.Definition.Title,
			Occurrence:   req.Occurrence,
			Sequence:     req.Sequence,
			Amount:       req.Definition.Amount,
			Category:     req.Definition.Category,
		})
		total = total.Add(req.Definition.Amount)
	}

	issues := plan.Issues
	if issues == nil {
		issues = []engine.Issue{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":        plan.AsOf,
		"occurrences":  items,
		"count":        len(items),
		"total_amount": total,
		"issues":       issues,
	})
}

// LedgerHandler handles generated transaction and budget endpoints.
type LedgerHandler struct {
	ledger Ledger
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(ledger Ledger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// ListTransactions handles GET /api/users/{userID}/transactions?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mux.Vars(r)["userID"]

	from, err := parseDateParam(r, "from")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid from format")
		return
	}
	to, err := parseDateParam(r, "to")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid to format")
		return
	}

	transactions, err := h.ledger.Transactions(ctx, userID, from, to)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	// Return array directly for frontend compatibility
	if transactions == nil {
		transactions = []domain.GeneratedTransaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// GetBudget handles GET /api/users/{userID}/budgets/{period}?category=...
func (h *LedgerHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	key := domain.BudgetKey{
		UserID:   vars["userID"],
		Period:   vars["period"],
		Category: r.URL.Query().Get("category"),
	}
	if _, err := time.Parse("2006-01", key.Period); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Period must be YYYY-MM")
		return
	}
	if key.Category == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Category is required")
		return
	}

	spent, err := h.ledger.Budget(ctx, key)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("user_id", key.UserID).Msg("Failed to read budget")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read budget")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  key.UserID,
		"category": key.Category,
		"period":   key.Period,
		"spent":    spent,
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

var errInvalidDate = errors.New("invalid date")

// parseDateParam reads an optional YYYY-MM-DD query parameter. Missing
// parameters yield the zero date.
func parseDateParam(r *http.Request, name string) (civil.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return civil.Date{}, errInvalidDate
	}
	return d, nil
}
