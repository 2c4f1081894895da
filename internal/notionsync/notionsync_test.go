package notionsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/dvloznov/finance-recurring/internal/infra/inmemory"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// MockNotionService is a mock implementation of NotionService for testing.
type MockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	mu      sync.Mutex
	created []notionapi.Properties
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	m.mu.Lock()
	m.created = append(m.created, properties)
	n := len(m.created)
	m.mu.Unlock()

	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	return &notionapi.Page{ID: notionapi.ObjectID(fmt.Sprintf("page-%d", n))}, nil
}

func (m *MockNotionService) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, req)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (m *MockNotionService) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

func pageWithTransactionID(id string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID("page-" + id),
		Properties: notionapi.Properties{
			propTransactionID: &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: id}},
			},
		},
	}
}

func testTransaction(id string, d civil.Date) domain.GeneratedTransaction {
	return domain.GeneratedTransaction{
		ID:                id,
		UserID:            "user-1",
		Date:              d,
		DayOfWeek:         d.In(time.UTC).Weekday(),
		Title:             "Gym",
		Category:          "Health",
		Wallet:            "Main",
		Description:       "monthly membership",
		Amount:            decimal.RequireFromString("39.90"),
		IsAutoGenerated:   true,
		RecurringSourceID: "def-gym",
		CreatedAt:         time.Date(2024, time.March, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestTransactionToNotionProperties(t *testing.T) {
	tx := testTransaction("tx-1", civil.Date{Year: 2024, Month: time.March, Day: 1})
	props := TransactionToNotionProperties(tx)

	title, ok := props[propDescription].(notionapi.TitleProperty)
	if !ok || title.Title[0].Text.Content != "Gym" {
		t.Errorf("Description = %+v", props[propDescription])
	}
	amount, ok := props[propAmount].(notionapi.NumberProperty)
	if !ok || amount.Number != 39.90 {
		t.Errorf("Amount = %+v", props[propAmount])
	}
	date, ok := props[propDate].(notionapi.DateProperty)
	if !ok || time.Time(*date.Date.Start).Format("2006-01-02") != "2024-03-01" {
		t.Errorf("Date = %+v", props[propDate])
	}
	category, ok := props[propCategory].(notionapi.SelectProperty)
	if !ok || category.Select.Name != "Health" {
		t.Errorf("Category = %+v", props[propCategory])
	}
	auto, ok := props[propAutoGenerated].(notionapi.CheckboxProperty)
	if !ok || !auto.Checkbox {
		t.Errorf("Auto Generated = %+v", props[propAutoGenerated])
	}
	for _, name := range []string{propTransactionID, propRecurringSource, propNotes, propImportedAt, propWallet} {
		if _, ok := props[name]; !ok {
			t.Errorf("missing property %q", name)
		}
	}
}

func TestTransactionToNotionProperties_OmitsEmptyOptionalFields(t *testing.T) {
	tx := domain.GeneratedTransaction{ID: "tx-1", Title: "Bare", Amount: decimal.NewFromInt(1)}
	props := TransactionToNotionProperties(tx)

	for _, name := range []string{propCategory, propWallet, propRecurringSource, propNotes, propImportedAt} {
		if _, ok := props[name]; ok {
			t.Errorf("unexpected property %q", name)
		}
	}
}

func TestQueryAllNotionPages_Paginates(t *testing.T) {
	var cursors []notionapi.Cursor
	notion := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			cursors = append(cursors, req.StartCursor)
			if req.StartCursor == "" {
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{pageWithTransactionID("a")},
					HasMore:    true,
					NextCursor: "next",
				}, nil
			}
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{pageWithTransactionID("b")}}, nil
		},
	}

	pages, err := queryAllNotionPages(context.Background(), notion, "db")
	if err != nil {
		t.Fatalf("queryAllNotionPages: %v", err)
	}
	if len(pages) != 2 {
		t.Errorf("got %d pages, want 2", len(pages))
	}
	if len(cursors) != 2 || cursors[1] != "next" {
		t.Errorf("cursors = %v", cursors)
	}
}

func TestSyncTransactions(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	for i := 1; i <= 3; i++ {
		_ = store.Append(ctx, testTransaction(fmt.Sprintf("tx-%d", i), civil.Date{Year: 2024, Month: time.Month(i), Day: 1}))
	}

	tests := []struct {
		name        string
		existing    []string
		failCreate  bool
		dryRun      bool
		want        SyncResult
		wantCreates int
	}{
		{
			name:        "creates missing pages",
			existing:    []string{"tx-2"},
			want:        SyncResult{Total: 3, Created: 2, Skipped: 1},
			wantCreates: 2,
		},
		{
			name:        "dry run writes nothing",
			dryRun:      true,
			want:        SyncResult{Total: 3, Created: 3},
			wantCreates: 0,
		},
		{
			name:        "create failures are counted",
			failCreate:  true,
			want:        SyncResult{Total: 3, Failed: 3},
			wantCreates: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notion := &MockNotionService{
				QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
					var pages []notionapi.Page
					for _, id := range tt.existing {
						pages = append(pages, pageWithTransactionID(id))
					}
					return &notionapi.DatabaseQueryResponse{Results: pages}, nil
				},
			}
			if tt.failCreate {
				notion.CreatePageFunc = func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
					return nil, errors.New("rate limited")
				}
			}

			got, err := SyncTransactions(ctx, store, notion, "db", "user-1", civil.Date{}, civil.Date{}, tt.dryRun)
			if err != nil {
				t.Fatalf("SyncTransactions: %v", err)
			}
			if *got != tt.want {
				t.Errorf("result = %+v, want %+v", *got, tt.want)
			}
			if notion.Created() != tt.wantCreates {
				t.Errorf("CreatePage called %d times, want %d", notion.Created(), tt.wantCreates)
			}
		})
	}
}

func TestSyncTransactions_QueryFailure(t *testing.T) {
	notion := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return nil, errors.New("unauthorized")
		},
	}

	_, err := SyncTransactions(context.Background(), inmemory.NewStore(), notion, "db", "user-1", civil.Date{}, civil.Date{}, false)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestWrap_MirrorsAppends(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	notion := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{pageWithTransactionID("tx-old")}}, nil
		},
	}
	mirrored := Wrap(store, notion, "db")

	for _, id := range []string{"tx-old", "tx-new", "tx-new"} {
		if err := mirrored.Append(ctx, testTransaction(id, civil.Date{Year: 2024, Month: time.March, Day: 1})); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}

	if notion.Created() != 1 {
		t.Errorf("CreatePage called %d times, want 1", notion.Created())
	}
	stored, _ := store.Transactions(ctx, "user-1", civil.Date{}, civil.Date{})
	if len(stored) != 2 {
		t.Errorf("got %d stored transactions, want 2", len(stored))
	}
}

func TestWrap_NotionFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	notion := &MockNotionService{
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("notion down")
		},
	}

	if err := Wrap(store, notion, "db").Append(ctx, testTransaction("tx-1", civil.Date{Year: 2024, Month: time.March, Day: 1})); err != nil {
		t.Fatalf("Append returned mirror error: %v", err)
	}
	stored, _ := store.Transactions(ctx, "user-1", civil.Date{}, civil.Date{})
	if len(stored) != 1 {
		t.Errorf("got %d stored transactions, want 1", len(stored))
	}
}

func TestWrap_KeepsCommitter(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	march := civil.Date{Year: 2024, Month: time.March, Day: 1}
	_ = store.PutDefinition(context.Background(), domain.RecurringExpenseDefinition{
		ID:        "def-gym",
		UserID:    "user-1",
		Title:     "Gym",
		Amount:    decimal.RequireFromString("39.90"),
		Category:  "Health",
		Frequency: domain.FrequencyMonthly,
		StartDate: march,
		IsActive:  true,
	})
	notion := &MockNotionService{}

	mirrored := Wrap(store, notion, "db")
	committer, ok := mirrored.(interface {
		Commit(ctx context.Context, tx domain.GeneratedTransaction, upd domain.DefinitionUpdate) error
	})
	if !ok {
		t.Fatal("wrapped store lost Commit")
	}

	upd := domain.DefinitionUpdate{DefinitionID: "def-gym", ExpectedNextOccurrence: march, NextOccurrence: march.AddMonths(1), TotalGenerated: 1}
	if err := committer.Commit(ctx, testTransaction("tx-1", march), upd); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if notion.Created() != 1 {
		t.Errorf("CreatePage called %d times, want 1", notion.Created())
	}
}

func TestWrap_AppendOnlyStaysAppendOnly(t *testing.T) {
	mirrored := Wrap(appendOnlyStore{inmemory.NewStore()}, &MockNotionService{}, "db")
	if _, ok := mirrored.(interface {
		Commit(ctx context.Context, tx domain.GeneratedTransaction, upd domain.DefinitionUpdate) error
	}); ok {
		t.Error("append-only store gained Commit")
	}
}

type appendOnlyStore struct{ store *inmemory.Store }

func (a appendOnlyStore) Append(ctx context.Context, tx domain.GeneratedTransaction) error {
	return a.store.Append(ctx, tx)
}
