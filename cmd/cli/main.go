package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/app"
	"github.com/dvloznov/finance-recurring/internal/config"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/gcsreport"
	"github.com/dvloznov/finance-recurring/internal/logger"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "process":
		runProcess()
	case "preview":
		runPreview()
	case "transactions":
		runTransactions()
	case "budget":
		runBudget()
	case "report":
		runReport()
	case "put-definition":
		runPutDefinition()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Recurring Expenses CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  process         Generate every due recurring expense for a user")
	fmt.Println("  preview         Show what process would generate, without writing")
	fmt.Println("  transactions    List generated transactions")
	fmt.Println("  budget          Show the amount spent for a category and month")
	fmt.Println("  report          Print an archived run report from GCS")
	fmt.Println("  put-definition  Create or replace a definition from a JSON file")
	fmt.Println("  help            Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// setup loads the configuration, registers the shared flags plus the
// command's own, parses the arguments and connects the backends.
func setup(name string, register func(fs *flag.FlagSet)) (context.Context, zerolog.Logger, *app.App) {
	cfg, err := config.Load()
	if err != nil {
		log := logger.Default()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfg.RegisterFlags(fs)
	if register != nil {
		register(fs)
	}
	fs.Parse(os.Args[2:])

	log, err := app.NewLogger(cfg, "recurring-cli")
	if err != nil {
		log := logger.Default()
		log.Fatal().Err(err).Msg("Invalid logger configuration")
	}
	ctx := logger.WithContext(context.Background(), log)

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backends")
	}
	return ctx, log, application
}

func runProcess() {
	var userID string
	ctx, log, application := setup("process", func(fs *flag.FlagSet) {
		fs.StringVar(&userID, "user", "", "User ID to process")
	})
	defer application.Close()

	if userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	report, err := application.Processor.Process(ctx, userID)
	if report != nil {
		printReport(report)
		if application.Archiver != nil {
			fmt.Printf("\nArchived at %s\n", application.Archiver.URI(report))
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Processing failed")
	}
}

func runPreview() {
	var userID, asOfStr string
	ctx, log, application := setup("preview", func(fs *flag.FlagSet) {
		fs.StringVar(&userID, "user", "", "User ID to preview")
		fs.StringVar(&asOfStr, "as-of", "", "Date to preview as of (YYYY-MM-DD, default today)")
	})
	defer application.Close()

	if userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}
	asOf := parseDateFlag(log, "as-of", asOfStr)

	plan, err := application.Processor.Preview(ctx, userID, asOf)
	if err != nil {
		log.Fatal().Err(err).Msg("Preview failed")
	}

	fmt.Printf("\n=== Preview as of %s (%d occurrences) ===\n", plan.AsOf, len(plan.Requests))
	for _, group := range plan.ByDefinition() {
		def := group[0].Definition
		fmt.Printf("\n%s [%s] %s %s\n", def.Title, def.ID, def.Amount.StringFixed(2), def.Frequency)
		for _, req := range group {
			fmt.Printf("   %s  #%d\n", req.Occurrence, req.Sequence)
		}
	}
	printIssues(plan.Issues)
}

func runTransactions() {
	var userID, fromStr, toStr string
	ctx, log, application := setup("transactions", func(fs *flag.FlagSet) {
		fs.StringVar(&userID, "user", "", "User ID")
		fs.StringVar(&fromStr, "from", "", "First date (YYYY-MM-DD, optional)")
		fs.StringVar(&toStr, "to", "", "Last date (YYYY-MM-DD, optional)")
	})
	defer application.Close()

	if userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}
	from := parseDateFlag(log, "from", fromStr)
	to := parseDateFlag(log, "to", toStr)

	txs, err := application.Ledger.Transactions(ctx, userID, from, to)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query transactions")
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(txs))
	for i, tx := range txs {
		fmt.Printf("\n%d. %s\n", i+1, tx.Title)
		fmt.Printf("   Date:     %s (%s)\n", tx.Date, tx.DayOfWeek)
		fmt.Printf("   Amount:   %s\n", tx.Amount.StringFixed(2))
		fmt.Printf("   Category: %s\n", tx.Category)
		fmt.Printf("   Source:   %s\n", tx.RecurringSourceID)
	}
	fmt.Println()
}

func runBudget() {
	var userID, category, period string
	ctx, log, application := setup("budget", func(fs *flag.FlagSet) {
		fs.StringVar(&userID, "user", "", "User ID")
		fs.StringVar(&category, "category", "", "Category name")
		fs.StringVar(&period, "period", "", "Month (YYYY-MM, default current month)")
	})
	defer application.Close()

	if userID == "" || category == "" {
		log.Fatal().Msg("Usage: cli budget -user ID -category NAME [-period YYYY-MM]")
	}
	if period == "" {
		period = domain.BudgetPeriod(application.Processor.Today())
	}

	key := domain.BudgetKey{UserID: userID, Category: category, Period: period}
	spent, err := application.Ledger.Budget(ctx, key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read budget")
	}

	fmt.Printf("%s %s: %s\n", category, period, spent.StringFixed(2))
}

func runReport() {
	var uri string
	ctx, log, application := setup("report", func(fs *flag.FlagSet) {
		fs.StringVar(&uri, "uri", "", "gs:// URI of an archived run report")
	})
	defer application.Close()

	if uri == "" {
		log.Fatal().Msg("Error: --uri is required")
	}

	objects := application.Objects
	if objects == nil {
		var err error
		if objects, err = gcsreport.NewGCSObjectStore(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer objects.Close()
	}

	report, err := gcsreport.FetchReport(ctx, objects, uri)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch report")
	}
	printReport(report)
}

func runPutDefinition() {
	var file string
	ctx, log, application := setup("put-definition", func(fs *flag.FlagSet) {
		fs.StringVar(&file, "file", "", "Path to a JSON definition")
	})
	defer application.Close()

	if file == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read definition file")
	}

	var def domain.RecurringExpenseDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		log.Fatal().Err(err).Msg("Failed to decode definition")
	}
	if def.Frequency, err = domain.ParseFrequency(string(def.Frequency)); err != nil {
		log.Fatal().Err(err).Msg("Invalid definition")
	}
	check := def
	check.NextOccurrence = check.EffectiveNextOccurrence()
	if err := check.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid definition")
	}

	writer, err := application.DefinitionWriter()
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot store definitions")
	}
	if err := writer.PutDefinition(ctx, def); err != nil {
		log.Fatal().Err(err).Msg("Failed to store definition")
	}

	fmt.Printf("Stored definition %s for user %s\n", def.ID, def.UserID)
}

func parseDateFlag(log zerolog.Logger, name, value string) civil.Date {
	if value == "" {
		return civil.Date{}
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		log.Fatal().Err(err).Msgf("Invalid --%s", name)
	}
	return d
}

func printReport(report *engine.RunReport) {
	fmt.Println("\n=== Run Report ===")
	fmt.Printf("Run ID:    %s\n", report.RunID)
	fmt.Printf("User:      %s\n", report.UserID)
	fmt.Printf("As of:     %s\n", report.AsOf)
	fmt.Printf("Generated: %d\n", report.Generated)
	if report.Cancelled {
		fmt.Println("Cancelled: yes")
	}

	for _, def := range report.Definitions {
		next := "-"
		if def.NextOccurrence != nil {
			next = def.NextOccurrence.String()
		}
		fmt.Printf("\n%s [%s]\n", def.Title, def.DefinitionID)
		fmt.Printf("   Generated: %d of %d planned\n", def.Generated, def.Planned)
		fmt.Printf("   Next:      %s\n", next)
		fmt.Printf("   Total:     %d\n", def.TotalGenerated)
	}
	printIssues(report.Issues)
	fmt.Println()
}

func printIssues(issues []engine.Issue) {
	if len(issues) == 0 {
		return
	}
	fmt.Printf("\n=== Issues (%d) ===\n", len(issues))
	for _, issue := range issues {
		occurrence := ""
		if issue.Occurrence != "" {
			occurrence = " @ " + issue.Occurrence
		}
		fmt.Printf("  %s %s%s: %s\n", issue.Kind, issue.DefinitionID, occurrence, issue.Message)
	}
}
