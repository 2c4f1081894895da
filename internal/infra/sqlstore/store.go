// Package sqlstore persists definitions, generated transactions and budget
// aggregates in a relational database. Postgres (through pgx) is the
// production dialect; SQLite serves local runs and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Store implements engine.DefinitionRepository, engine.TransactionStore and
// engine.Committer on top of database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database described by dsn.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	var db *sql.DB

	switch dialect {
	case DialectPostgres:
		config, err := pgx.ParseConfig(normalizePostgresURL(dsn))
		if err != nil {
			return nil, fmt.Errorf("Open: failed to parse database URL: %w", err)
		}
		db = stdlib.OpenDB(*config)
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	case DialectSQLite:
		var err error
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("Open: failed to open sqlite database: %w", err)
		}
		// SQLite has a single writer, and every connection to :memory: is a new database.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("Open: unsupported dialect %q", dialect)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: failed to connect to database: %w", err)
	}

	return New(db, dialect), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the tables the store needs if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("EnsureSchema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// withTx runs fn inside a database transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// normalizePostgresURL accepts postgresql:// URLs and defaults sslmode to disable.
func normalizePostgresURL(url string) string {
	if strings.HasPrefix(url, "postgresql://") {
		url = "postgres://" + strings.TrimPrefix(url, "postgresql://")
	}
	if strings.HasPrefix(url, "postgres://") && !strings.Contains(url, "sslmode=") {
		separator := "?"
		if strings.Contains(url, "?") {
			separator = "&"
		}
		url += separator + "sslmode=disable"
	}
	return url
}

// Ensure Store implements the engine interfaces.
var (
	_ engine.DefinitionRepository = (*Store)(nil)
	_ engine.TransactionStore     = (*Store)(nil)
	_ engine.Committer            = (*Store)(nil)
)
