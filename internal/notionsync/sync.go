package notionsync

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize defines the number of transactions to process in a single batch
	BatchSize = 100
)

// SyncResult summarises one backfill run.
type SyncResult struct {
	Total   int
	Created int
	Skipped int
	Failed  int
}

// SyncTransactions copies a user's stored transactions within the date range to Notion.
// Transactions whose ID already appears in the database are skipped, so the
// backfill can be rerun safely. A zero from or to leaves that side unbounded.
// Failures on individual pages are logged and counted, not returned.
func SyncTransactions(ctx context.Context, source TransactionSource, notionClient NotionService, notionDBID, userID string, from, to civil.Date, dryRun bool) (*SyncResult, error) {
	log := logger.FromContext(ctx).With().Str("user_id", userID).Logger()

	log.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	transactions, err := source.Transactions(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	log.Info().Int("transaction_count", len(transactions)).Msg("Retrieved transactions")

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("failed to query Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]bool, len(notionPages))
	for _, page := range notionPages {
		if txID := extractTransactionID(page); txID != "" {
			existing[txID] = true
		}
	}

	result := &SyncResult{Total: len(transactions)}
	for i := 0; i < len(transactions); i += BatchSize {
		end := min(i+BatchSize, len(transactions))

		batch := transactions[i:end]
		log.Debug().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, tx := range batch {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			if existing[tx.ID] {
				result.Skipped++
				continue
			}

			if dryRun {
				log.Info().
					Str("transaction_id", tx.ID).
					Msg("[DRY RUN] Would create new Notion page")
				result.Created++
				continue
			}

			page, err := notionClient.CreatePage(ctx, notionDBID, TransactionToNotionProperties(tx))
			if err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", tx.ID).
					Msg("Failed to create Notion page")
				result.Failed++
				continue
			}
			existing[tx.ID] = true
			result.Created++

			log.Debug().
				Str("transaction_id", tx.ID).
				Str("page_id", string(page.ID)).
				Msg("Created Notion page")
		}
	}

	log.Info().
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Msg("Transaction sync completed")

	return result, nil
}

// queryAllNotionPages queries all pages from a Notion database, handling pagination.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
