// Package inmemory provides map-backed repositories for local runs and tests.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/shopspring/decimal"
)

// Store is an in-memory implementation of the definition repository and the
// transaction store. It is safe for concurrent use.
// Data is lost on restart - for persistence, use the SQL, Firestore or BigQuery stores.
type Store struct {
	mu           sync.RWMutex
	definitions  map[string]domain.RecurringExpenseDefinition
	transactions map[string]domain.GeneratedTransaction
	budgets      map[domain.BudgetKey]decimal.Decimal
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		definitions:  make(map[string]domain.RecurringExpenseDefinition),
		transactions: make(map[string]domain.GeneratedTransaction),
		budgets:      make(map[domain.BudgetKey]decimal.Decimal),
	}
}

// PutDefinition creates or replaces a definition.
func (s *Store) PutDefinition(ctx context.Context, def domain.RecurringExpenseDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("PutDefinition: definition ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.ID] = def
	return nil
}

// Definition returns a copy of the stored definition.
func (s *Store) Definition(id string) (domain.RecurringExpenseDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[id]
	return def, ok
}

// LoadActiveDefinitions implements engine.DefinitionRepository.
func (s *Store) LoadActiveDefinitions(ctx context.Context, userID string) ([]domain.RecurringExpenseDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.RecurringExpenseDefinition
	for _, def := range s.definitions {
		if def.UserID == userID && def.IsActive {
			result = append(result, def)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SaveDefinitionUpdate implements engine.DefinitionRepository.
func (s *Store) SaveDefinitionUpdate(ctx context.Context, userID string, upd domain.DefinitionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyUpdateLocked(userID, upd)
}

// Append implements engine.TransactionStore.
func (s *Store) Append(ctx context.Context, tx domain.GeneratedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(tx)
	return nil
}

// Commit implements engine.Committer: the transaction, the budget change and
// the definition update are applied under one lock, or not at all.
func (s *Store) Commit(ctx context.Context, tx domain.GeneratedTransaction, upd domain.DefinitionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUpdateLocked(tx.UserID, upd); err != nil {
		return err
	}
	s.appendLocked(tx)
	return s.applyUpdateLocked(tx.UserID, upd)
}

// Transactions returns the user's transactions dated within [from, to],
// ordered by date, then ID. A zero bound is open.
func (s *Store) Transactions(ctx context.Context, userID string, from, to civil.Date) ([]domain.GeneratedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.GeneratedTransaction{}
	for _, tx := range s.transactions {
		if tx.UserID != userID {
			continue
		}
		if !from.IsZero() && tx.Date.Before(from) {
			continue
		}
		if !to.IsZero() && tx.Date.After(to) {
			continue
		}
		result = append(result, tx)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Budget returns the amount spent for a budget key. Income is not counted.
func (s *Store) Budget(ctx context.Context, key domain.BudgetKey) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.budgets[key], nil
}

func (s *Store) appendLocked(tx domain.GeneratedTransaction) {
	if _, exists := s.transactions[tx.ID]; exists {
		return
	}
	s.transactions[tx.ID] = tx
	if tx.IsIncome {
		return
	}

	key := domain.BudgetKeyFor(tx)
	s.budgets[key] = s.budgets[key].Add(tx.Amount)
}

func (s *Store) checkUpdateLocked(userID string, upd domain.DefinitionUpdate) error {
	def, ok := s.definitions[upd.DefinitionID]
	if !ok || def.UserID != userID {
		return fmt.Errorf("definition not found: %s", upd.DefinitionID)
	}
	if current := def.EffectiveNextOccurrence(); current != upd.ExpectedNextOccurrence {
		return fmt.Errorf("definition %s at %s, update expects %s: %w",
			upd.DefinitionID, current, upd.ExpectedNextOccurrence, engine.ErrStaleDefinition)
	}
	return nil
}

func (s *Store) applyUpdateLocked(userID string, upd domain.DefinitionUpdate) error {
	if err := s.checkUpdateLocked(userID, upd); err != nil {
		return err
	}

	def := s.definitions[upd.DefinitionID]
	def.NextOccurrence = upd.NextOccurrence
	def.TotalGenerated = upd.TotalGenerated
	s.definitions[upd.DefinitionID] = def
	return nil
}

// Ensure Store implements the engine interfaces.
var (
	_ engine.DefinitionRepository = (*Store)(nil)
	_ engine.TransactionStore     = (*Store)(nil)
	_ engine.Committer            = (*Store)(nil)
)
