package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/shopspring/decimal"
)

// TransactionStore is the BigQuery implementation of engine.TransactionStore.
// It holds a shared BigQuery client to avoid creating a new connection for
// each operation.
type TransactionStore struct {
	client  *bigquery.Client
	dataset string
}

// NewTransactionStore creates a TransactionStore with its own client.
func NewTransactionStore(ctx context.Context, projectID, dataset string) (*TransactionStore, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionStore: creating client: %w", err)
	}
	return NewTransactionStoreWithClient(client, dataset), nil
}

// NewTransactionStoreWithClient wraps an existing client.
func NewTransactionStoreWithClient(client *bigquery.Client, dataset string) *TransactionStore {
	return &TransactionStore{
		client:  client,
		dataset: dataset,
	}
}

// Close closes the BigQuery client connection.
func (s *TransactionStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Append implements engine.TransactionStore.
func (s *TransactionStore) Append(ctx context.Context, tx domain.GeneratedTransaction) error {
	return AppendTransactionWithClient(ctx, s.client, s.dataset, NewTransactionRow(tx))
}

// Transactions returns the user's transactions between from and to.
func (s *TransactionStore) Transactions(ctx context.Context, userID string, from, to civil.Date) ([]domain.GeneratedTransaction, error) {
	rows, err := QueryTransactionsByUserWithClient(ctx, s.client, s.dataset, userID, from, to)
	if err != nil {
		return nil, err
	}

	txs := make([]domain.GeneratedTransaction, 0, len(rows))
	for _, r := range rows {
		txs = append(txs, r.Transaction())
	}
	return txs, nil
}

// Budget returns the amount spent for a budget key; zero when no row exists.
func (s *TransactionStore) Budget(ctx context.Context, key domain.BudgetKey) (decimal.Decimal, error) {
	row, err := GetBudgetWithClient(ctx, s.client, s.dataset, key.UserID, key.Category, key.Period)
	if err != nil {
		return decimal.Zero, err
	}
	if row == nil || row.Spent == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromBigRat(row.Spent, amountScale), nil
}

var _ engine.TransactionStore = (*TransactionStore)(nil)
