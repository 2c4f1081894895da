// Package gcsreport archives processing run reports as JSON objects in a
// Cloud Storage bucket.
package gcsreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/dvloznov/finance-recurring/internal/logger"
)

const reportPrefix = "recurring-runs"

// Archiver implements engine.ReportArchiver.
type Archiver struct {
	store  ObjectStore
	bucket string
}

// NewArchiver creates an Archiver writing into bucket.
func NewArchiver(store ObjectStore, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket}
}

// ObjectName returns recurring-runs/<user>/<yyyy-mm-dd>/<run_id>.json.
func ObjectName(report *engine.RunReport) string {
	return path.Join(reportPrefix, report.UserID, report.AsOf.String(), report.RunID+".json")
}

// URI returns the gs:// location a report is archived at.
func (a *Archiver) URI(report *engine.RunReport) string {
	return fmt.Sprintf("gs://%s/%s", a.bucket, ObjectName(report))
}

// ArchiveReport implements engine.ReportArchiver.
func (a *Archiver) ArchiveReport(ctx context.Context, report *engine.RunReport) error {
	if report.UserID == "" || report.RunID == "" {
		return errors.New("ArchiveReport: report has no user or run ID")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("ArchiveReport: marshal: %w", err)
	}

	object := ObjectName(report)
	if err := a.store.WriteObject(ctx, a.bucket, object, data, "application/json"); err != nil {
		return fmt.Errorf("ArchiveReport: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("run_id", report.RunID).
		Str("object", object).
		Msg("Archived run report")
	return nil
}

// FetchReport reads an archived report from a gs:// URI.
func FetchReport(ctx context.Context, store ObjectStore, uri string) (*engine.RunReport, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, fmt.Errorf("FetchReport: %w", err)
	}

	data, err := store.ReadObject(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("FetchReport: %w", err)
	}

	var report engine.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("FetchReport: decode %s: %w", uri, err)
	}
	return &report, nil
}

var _ engine.ReportArchiver = (*Archiver)(nil)
