package notionsync

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/jomei/notionapi"
)

// NotionService defines the Notion operations the mirror needs.
// This interface enables mocking and testing of Notion operations.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database.
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// TransactionSource lists stored transactions for a backfill.
type TransactionSource interface {
	Transactions(ctx context.Context, userID string, from, to civil.Date) ([]domain.GeneratedTransaction, error)
}
