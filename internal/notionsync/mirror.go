package notionsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/logger"
)

// Mirror copies every transaction appended to the wrapped store into a Notion
// database. The wrapped store stays the source of truth: mirror failures are
// logged and never returned.
type Mirror struct {
	next       engine.TransactionStore
	notion     NotionService
	databaseID string

	mu     sync.Mutex
	known  map[string]bool
	loaded bool
}

// committingMirror keeps the atomic write path of stores that have one.
type committingMirror struct {
	*Mirror
	committer engine.Committer
}

// Wrap returns a TransactionStore that mirrors next into the Notion database.
// When next implements engine.Committer, so does the returned store.
func Wrap(next engine.TransactionStore, notion NotionService, databaseID string) engine.TransactionStore {
	m := &Mirror{
		next:       next,
		notion:     notion,
		databaseID: databaseID,
		known:      make(map[string]bool),
	}
	if c, ok := next.(engine.Committer); ok {
		return &committingMirror{Mirror: m, committer: c}
	}
	return m
}

// Append implements engine.TransactionStore.
func (m *Mirror) Append(ctx context.Context, tx domain.GeneratedTransaction) error {
	if err := m.next.Append(ctx, tx); err != nil {
		return err
	}
	m.mirror(ctx, tx)
	return nil
}

// Commit implements engine.Committer.
func (m *committingMirror) Commit(ctx context.Context, tx domain.GeneratedTransaction, upd domain.DefinitionUpdate) error {
	if err := m.committer.Commit(ctx, tx, upd); err != nil {
		return err
	}
	m.mirror(ctx, tx)
	return nil
}

func (m *Mirror) mirror(ctx context.Context, tx domain.GeneratedTransaction) {
	log := logger.FromContext(ctx).With().
		Str("transaction_id", tx.ID).
		Str("notion_database_id", m.databaseID).
		Logger()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		if err := m.loadKnownLocked(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to load existing Notion pages, skipping mirror")
			return
		}
	}
	if m.known[tx.ID] {
		return
	}

	page, err := m.notion.CreatePage(ctx, m.databaseID, TransactionToNotionProperties(tx))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to mirror transaction to Notion")
		return
	}
	m.known[tx.ID] = true

	log.Debug().Str("page_id", string(page.ID)).Msg("Mirrored transaction to Notion")
}

func (m *Mirror) loadKnownLocked(ctx context.Context) error {
	pages, err := queryAllNotionPages(ctx, m.notion, m.databaseID)
	if err != nil {
		return fmt.Errorf("loadKnown: %w", err)
	}
	for _, page := range pages {
		if id := extractTransactionID(page); id != "" {
			m.known[id] = true
		}
	}
	m.loaded = true
	return nil
}

var (
	_ engine.TransactionStore = (*Mirror)(nil)
	_ engine.Committer        = (*committingMirror)(nil)
)
