package gcsreport

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/engine"
)

// MockObjectStore is a mock implementation of ObjectStore for testing.
type MockObjectStore struct {
	WriteObjectFunc func(ctx context.Context, bucket, object string, data []byte, contentType string) error
	ReadObjectFunc  func(ctx context.Context, bucket, object string) ([]byte, error)
}

func (m *MockObjectStore) WriteObject(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	if m.WriteObjectFunc != nil {
		return m.WriteObjectFunc(ctx, bucket, object, data, contentType)
	}
	return nil
}

func (m *MockObjectStore) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadObjectFunc != nil {
		return m.ReadObjectFunc(ctx, bucket, object)
	}
	return nil, errors.New("not found")
}

func testReport() *engine.RunReport {
	next := civil.Date{Year: 2024, Month: time.May, Day: 15}
	return &engine.RunReport{
		RunID:     "run-1",
		UserID:    "user-1",
		AsOf:      civil.Date{Year: 2024, Month: time.April, Day: 20},
		StartedAt: time.Date(2024, time.April, 20, 10, 0, 0, 0, time.UTC),
		Generated: 4,
		Definitions: []engine.DefinitionResult{
			{DefinitionID: "rent", Title: "Rent", Planned: 4, Generated: 4, NextOccurrence: &next, TotalGenerated: 7},
		},
		Issues: []engine.Issue{
			{DefinitionID: "broken", Kind: engine.IssueMalformedDefinition, Message: "unknown frequency"},
		},
	}
}

func TestObjectName(t *testing.T) {
	want := "recurring-runs/user-1/2024-04-20/run-1.json"
	if got := ObjectName(testReport()); got != want {
		t.Errorf("ObjectName = %q, want %q", got, want)
	}
}

func TestArchiveAndFetchReport(t *testing.T) {
	ctx := context.Background()
	objects := make(map[string][]byte)
	store := &MockObjectStore{
		WriteObjectFunc: func(ctx context.Context, bucket, object string, data []byte, contentType string) error {
			if contentType != "application/json" {
				t.Errorf("contentType = %q", contentType)
			}
			objects[bucket+"/"+object] = data
			return nil
		},
		ReadObjectFunc: func(ctx context.Context, bucket, object string) ([]byte, error) {
			data, ok := objects[bucket+"/"+object]
			if !ok {
				return nil, errors.New("object not found")
			}
			return data, nil
		},
	}

	archiver := NewArchiver(store, "reports")
	report := testReport()
	if err := archiver.ArchiveReport(ctx, report); err != nil {
		t.Fatalf("ArchiveReport: %v", err)
	}

	uri := archiver.URI(report)
	if uri != "gs://reports/recurring-runs/user-1/2024-04-20/run-1.json" {
		t.Errorf("URI = %q", uri)
	}

	got, err := FetchReport(ctx, store, uri)
	if err != nil {
		t.Fatalf("FetchReport: %v", err)
	}
	if got.RunID != "run-1" || got.AsOf != report.AsOf || got.Generated != 4 {
		t.Errorf("fetched report = %+v", got)
	}
	if len(got.Definitions) != 1 || *got.Definitions[0].NextOccurrence != *report.Definitions[0].NextOccurrence {
		t.Errorf("definitions = %+v", got.Definitions)
	}
	if len(got.IssuesOfKind(engine.IssueMalformedDefinition)) != 1 {
		t.Errorf("issues = %+v", got.Issues)
	}
}

func TestArchiveReport_Errors(t *testing.T) {
	tests := []struct {
		name    string
		report  *engine.RunReport
		writeFn func(ctx context.Context, bucket, object string, data []byte, contentType string) error
	}{
		{
			name:   "missing run ID",
			report: &engine.RunReport{UserID: "user-1"},
		},
		{
			name:   "write failure",
			report: testReport(),
			writeFn: func(ctx context.Context, bucket, object string, data []byte, contentType string) error {
				return errors.New("permission denied")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archiver := NewArchiver(&MockObjectStore{WriteObjectFunc: tt.writeFn}, "reports")
			if err := archiver.ArchiveReport(context.Background(), tt.report); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{uri: "gs://bucket/a/b.json", wantBucket: "bucket", wantObject: "a/b.json"},
		{uri: "gs://bucket", wantErr: true},
		{uri: "gs://bucket/", wantErr: true},
		{uri: "s3://bucket/a.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("got %q %q", bucket, object)
			}
		})
	}
}

func TestFetchReport_InvalidJSON(t *testing.T) {
	store := &MockObjectStore{
		ReadObjectFunc: func(ctx context.Context, bucket, object string) ([]byte, error) {
			return []byte("{not json"), nil
		},
	}
	_, err := FetchReport(context.Background(), store, "gs://reports/x.json")
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Errorf("err = %v, want decode error", err)
	}
}
