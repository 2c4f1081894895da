// Package app assembles the engine and its backends from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/config"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/gcsreport"
	infraBQ "github.com/dvloznov/finance-recurring/internal/infra/bigquery"
	infraFS "github.com/dvloznov/finance-recurring/internal/infra/firestore"
	"github.com/dvloznov/finance-recurring/internal/infra/inmemory"
	"github.com/dvloznov/finance-recurring/internal/infra/redislock"
	"github.com/dvloznov/finance-recurring/internal/infra/sqlstore"
	"github.com/dvloznov/finance-recurring/internal/logger"
	"github.com/dvloznov/finance-recurring/internal/notionsync"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Ledger reads generated transactions and budget aggregates. Every
// transaction backend implements it.
type Ledger interface {
	Transactions(ctx context.Context, userID string, from, to civil.Date) ([]domain.GeneratedTransaction, error)
	Budget(ctx context.Context, key domain.BudgetKey) (decimal.Decimal, error)
}

// DefinitionWriter creates or replaces definitions, for seeding and tooling.
type DefinitionWriter interface {
	PutDefinition(ctx context.Context, def domain.RecurringExpenseDefinition) error
}

// App holds the wired services of one binary.
type App struct {
	Config *config.Config

	Definitions  engine.DefinitionRepository
	Transactions engine.TransactionStore
	Ledger       Ledger
	Processor    *engine.Processor

	// Archiver and Objects are nil when no bucket is configured.
	Archiver *gcsreport.Archiver
	Objects  *gcsreport.GCSObjectStore

	closers []func() error
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *config.Config, service string) (zerolog.Logger, error) {
	return logger.New(logger.Options{
		Level:   cfg.LogLevel,
		Format:  logger.Format(cfg.LogFormat),
		Service: service,
	})
}

// New validates cfg and connects every configured backend. Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{Config: cfg}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	log := logger.FromContext(ctx)

	var (
		memory   *inmemory.Store
		sqlStore *sqlstore.Store
	)

	openSQL := func() (*sqlstore.Store, error) {
		if sqlStore != nil {
			return sqlStore, nil
		}
		dialect := sqlstore.DialectPostgres
		if cfg.DefinitionsBackend == config.BackendSQLite || cfg.TransactionsBackend == config.BackendSQLite {
			dialect = sqlstore.DialectSQLite
		}
		store, err := sqlstore.Open(ctx, dialect, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sqlStore = store
		return sqlStore, nil
	}

	switch cfg.DefinitionsBackend {
	case config.BackendMemory:
		memory = inmemory.NewStore()
		a.Definitions = memory
	case config.BackendSQLite, config.BackendPostgres:
		store, err := openSQL()
		if err != nil {
			return fmt.Errorf("definitions: %w", err)
		}
		a.Definitions = store
	case config.BackendFirestore:
		repo, err := infraFS.NewDefinitionRepository(ctx, cfg.ProjectID, cfg.FirebaseCredentials)
		if err != nil {
			return fmt.Errorf("definitions: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		a.Definitions = repo
	}

	var (
		transactions engine.TransactionStore
		atomic       bool
	)
	switch cfg.TransactionsBackend {
	case config.BackendMemory:
		if memory == nil {
			memory = inmemory.NewStore()
		}
		transactions, a.Ledger = memory, memory
		atomic = a.Definitions == engine.DefinitionRepository(memory)
	case config.BackendSQLite, config.BackendPostgres:
		store, err := openSQL()
		if err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		transactions, a.Ledger = store, store
		atomic = a.Definitions == engine.DefinitionRepository(store)
	case config.BackendBigQuery:
		store, err := infraBQ.NewTransactionStore(ctx, cfg.ProjectID, cfg.BigQueryDataset)
		if err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		transactions, a.Ledger = store, store
	}

	if cfg.NotionEnabled() {
		transactions = notionsync.Wrap(transactions, notionsync.NewNotionClient(cfg.NotionToken), cfg.NotionDatabaseID)
		log.Info().Str("notion_database_id", cfg.NotionDatabaseID).Msg("Mirroring generated transactions to Notion")
	}
	a.Transactions = transactions

	opts, err := a.processorOptions(ctx)
	if err != nil {
		return err
	}
	if atomic {
		if c, ok := transactions.(engine.Committer); ok {
			opts.Committer = c
		}
	}
	a.Processor = engine.NewProcessor(a.Definitions, transactions, opts)

	log.Info().
		Str("definitions", cfg.DefinitionsBackend).
		Str("transactions", cfg.TransactionsBackend).
		Bool("atomic_commit", opts.Committer != nil).
		Bool("distributed_lock", cfg.RedisURL != "").
		Bool("archive", a.Archiver != nil).
		Msg("Recurring engine wired")
	return nil
}

func (a *App) processorOptions(ctx context.Context) (engine.ProcessorOptions, error) {
	cfg := a.Config

	loc, err := cfg.Location()
	if err != nil {
		return engine.ProcessorOptions{}, err
	}
	opts := engine.ProcessorOptions{
		Location:   loc,
		MaxCatchUp: cfg.MaxCatchUp,
		LockTTL:    cfg.LockTTL,
		Retry:      engine.RetryPolicy{Attempts: cfg.RetryCount, Backoff: cfg.RetryBackoff},
	}

	if cfg.RedisURL != "" {
		locker, err := redislock.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return engine.ProcessorOptions{}, fmt.Errorf("lock: %w", err)
		}
		a.closers = append(a.closers, locker.Close)
		opts.Locker = locker
	}

	if cfg.Bucket != "" {
		objects, err := gcsreport.NewGCSObjectStore(ctx)
		if err != nil {
			return engine.ProcessorOptions{}, fmt.Errorf("archive: %w", err)
		}
		a.closers = append(a.closers, objects.Close)
		a.Objects = objects
		a.Archiver = gcsreport.NewArchiver(objects, cfg.Bucket)
		opts.Archiver = a.Archiver
	}

	return opts, nil
}

// DefinitionWriter returns the definitions backend as a writer.
func (a *App) DefinitionWriter() (DefinitionWriter, error) {
	w, ok := a.Definitions.(DefinitionWriter)
	if !ok {
		return nil, errors.New("definitions backend does not support writes")
	}
	return w, nil
}

// Close releases every backend connection in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
