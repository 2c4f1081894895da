// Package config loads runtime settings from the environment. Binaries
// register command-line flags on top so any value can be overridden per run.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted for definitions and transactions.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendBigQuery  = "bigquery"
)

// Config holds every setting shared by the recurring-expense binaries.
type Config struct {
	// Storage
	DefinitionsBackend  string
	TransactionsBackend string
	DatabaseURL         string // postgres URL or sqlite DSN
	ProjectID           string
	BigQueryDataset     string
	FirebaseCredentials string
	Bucket              string // run report archive; empty disables archiving

	// Coordination
	RedisURL string // empty means in-process locking

	// Notion mirror; both values are required to enable it
	NotionToken      string
	NotionDatabaseID string

	// Engine
	Timezone     string
	MaxCatchUp   int
	LockTTL      time.Duration
	RetryCount   int
	RetryBackoff time.Duration

	// Scheduler and workers
	Users      []string
	QueueSize  int
	Workers    int
	RunOnStart bool

	// JobRetention is how many finished jobs the job store keeps
	JobRetention int

	// Logging
	LogLevel  string
	LogFormat string

	// HTTP
	Port string
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DefinitionsBackend:  getEnv("RECURRING_DEFINITIONS_BACKEND", BackendMemory),
		TransactionsBackend: getEnv("RECURRING_TRANSACTIONS_BACKEND", BackendMemory),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		ProjectID:           getEnv("GCP_PROJECT", os.Getenv("GOOGLE_CLOUD_PROJECT")),
		BigQueryDataset:     getEnv("BQ_DATASET", "finance"),
		FirebaseCredentials: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		Bucket:              os.Getenv("GCS_BUCKET"),
		RedisURL:            os.Getenv("REDIS_URL"),
		NotionToken:         os.Getenv("NOTION_TOKEN"),
		NotionDatabaseID:    os.Getenv("NOTION_DB_ID"),
		Timezone:            getEnv("RECURRING_TIMEZONE", "UTC"),
		Users:               splitList(os.Getenv("RECURRING_USERS")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "console"),
		Port:                getEnv("PORT", "8080"),
	}

	var err error
	if cfg.MaxCatchUp, err = getInt("RECURRING_MAX_CATCH_UP", 1000); err != nil {
		return nil, err
	}
	if cfg.RetryCount, err = getInt("RECURRING_RETRY_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getInt("RECURRING_QUEUE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("RECURRING_WORKERS", 5); err != nil {
		return nil, err
	}
	if cfg.JobRetention, err = getInt("RECURRING_JOB_RETENTION", 1000); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = getDuration("RECURRING_LOCK_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = getDuration("RECURRING_RETRY_BACKOFF", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RunOnStart, err = getBool("RECURRING_RUN_ON_START", true); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RegisterFlags binds the common settings to fs, using the loaded values as
// defaults. Call before fs.Parse.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DefinitionsBackend, "definitions", c.DefinitionsBackend, "Definition store: memory, sqlite, postgres or firestore")
	fs.StringVar(&c.TransactionsBackend, "transactions", c.TransactionsBackend, "Transaction store: memory, sqlite, postgres or bigquery")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "Postgres URL or sqlite DSN (or set DATABASE_URL env)")
	fs.StringVar(&c.ProjectID, "project", c.ProjectID, "GCP project ID (or set GCP_PROJECT env)")
	fs.StringVar(&c.BigQueryDataset, "dataset", c.BigQueryDataset, "BigQuery dataset")
	fs.StringVar(&c.Bucket, "bucket", c.Bucket, "GCS bucket for run reports (or set GCS_BUCKET env)")
	fs.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "Redis URL for the per-user scan lock (or set REDIS_URL env)")
	fs.StringVar(&c.NotionToken, "notion-token", c.NotionToken, "Notion API token (or set NOTION_TOKEN env)")
	fs.StringVar(&c.NotionDatabaseID, "notion-db-id", c.NotionDatabaseID, "Notion database ID (or set NOTION_DB_ID env)")
	fs.StringVar(&c.Timezone, "timezone", c.Timezone, "IANA time zone that decides the current day")
	fs.IntVar(&c.MaxCatchUp, "max-catch-up", c.MaxCatchUp, "Maximum occurrences generated per definition per run")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: console or json")
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("Location: load %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// NotionEnabled reports whether generated transactions are mirrored to Notion.
func (c *Config) NotionEnabled() bool {
	return c.NotionToken != "" && c.NotionDatabaseID != ""
}

// Validate reports every missing or inconsistent setting for the selected backends.
func (c *Config) Validate() error {
	var errs []error

	switch c.DefinitionsBackend {
	case BackendMemory, BackendSQLite, BackendPostgres:
	case BackendFirestore:
		if c.ProjectID == "" {
			errs = append(errs, errors.New("firestore definitions require GCP_PROJECT"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown definitions backend %q", c.DefinitionsBackend))
	}

	switch c.TransactionsBackend {
	case BackendMemory, BackendSQLite, BackendPostgres:
	case BackendBigQuery:
		if c.ProjectID == "" {
			errs = append(errs, errors.New("bigquery transactions require GCP_PROJECT"))
		}
		if c.BigQueryDataset == "" {
			errs = append(errs, errors.New("bigquery transactions require BQ_DATASET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transactions backend %q", c.TransactionsBackend))
	}

	if c.usesSQL() && c.DatabaseURL == "" {
		errs = append(errs, errors.New("sql backends require DATABASE_URL"))
	}
	if isSQL(c.DefinitionsBackend) && isSQL(c.TransactionsBackend) && c.DefinitionsBackend != c.TransactionsBackend {
		errs = append(errs, errors.New("definitions and transactions must use the same sql dialect"))
	}
	if c.DefinitionsBackend == BackendMemory && c.TransactionsBackend != BackendMemory {
		errs = append(errs, errors.New("memory definitions can only be paired with memory transactions"))
	}
	if (c.NotionToken == "") != (c.NotionDatabaseID == "") {
		errs = append(errs, errors.New("NOTION_TOKEN and NOTION_DB_ID must be set together"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q", c.Timezone))
	}
	if c.MaxCatchUp < 1 {
		errs = append(errs, fmt.Errorf("max catch-up must be positive, got %d", c.MaxCatchUp))
	}
	if c.RetryCount < 1 {
		errs = append(errs, fmt.Errorf("retry attempts must be positive, got %d", c.RetryCount))
	}

	return errors.Join(errs...)
}

func (c *Config) usesSQL() bool {
	return isSQL(c.DefinitionsBackend) || isSQL(c.TransactionsBackend)
}

func isSQL(backend string) bool {
	return backend == BackendSQLite || backend == BackendPostgres
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
