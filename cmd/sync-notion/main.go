package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/app"
	"github.com/dvloznov/finance-recurring/internal/config"
	"github.com/dvloznov/finance-recurring/internal/logger"
	"github.com/dvloznov/finance-recurring/internal/notionsync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.Default()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	userID := fs.String("user", "", "User ID whose transactions are copied (required)")
	fromStr := fs.String("from", "", "Start date in YYYY-MM-DD format (optional)")
	toStr := fs.String("to", "", "End date in YYYY-MM-DD format (optional)")
	dryRun := fs.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	fs.Parse(os.Args[1:])

	log, err := app.NewLogger(cfg, "recurring-sync-notion")
	if err != nil {
		log := logger.Default()
		log.Fatal().Err(err).Msg("Invalid logger configuration")
	}

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}
	if cfg.NotionToken == "" || cfg.NotionDatabaseID == "" {
		log.Fatal().Msg("Error: --notion-token and --notion-db-id are required")
	}

	var from, to civil.Date
	if *fromStr != "" {
		if from, err = civil.ParseDate(*fromStr); err != nil {
			log.Fatal().Err(err).Str("from", *fromStr).Msg("Error: invalid from date, expected YYYY-MM-DD")
		}
	}
	if *toStr != "" {
		if to, err = civil.ParseDate(*toStr); err != nil {
			log.Fatal().Err(err).Str("to", *toStr).Msg("Error: invalid to date, expected YYYY-MM-DD")
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		log.Fatal().
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Error: to must not be before from")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backends")
	}
	defer application.Close()

	notionClient := notionsync.NewNotionClient(cfg.NotionToken)

	result, err := notionsync.SyncTransactions(ctx, application.Ledger, notionClient, cfg.NotionDatabaseID, *userID, from, to, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d skipped, %d failed of %d transactions.\n",
		result.Created, result.Skipped, result.Failed, result.Total)
}
