package qbosync

import (
	"testing"
	"time"

	"bitbucket.org/onpointdev/ops_backend/models"
)

func TestExportSyncRuns(t *testing.T) {
	finished := time.Date(2026, 7, 1, 10, 5, 0, 0, time.UTC)
	errText := "quickbooks rate limit exceeded"
	runs := []*models.SyncRun{
		{
			ID:            2,
			EntityClass:   models.EntityClassTransactions,
			TriggeredBy:   models.SyncTriggeredManual,
			CorrelationId: "abc-123",
			StartedAt:     finished.Add(-5 * time.Minute),
			FinishedAt:    &finished,
			Success:       true,
			FetchedCount:  1137,
			UpsertedCount: 1135,
		},
		{
			ID:          1,
			EntityClass: models.EntityClassCustomers,
			TriggeredBy: models.SyncTriggeredSystem,
			StartedAt:   finished.Add(-time.Hour),
			ErrorText:   &errText,
		},
	}

	book, err := ExportSyncRuns(runs)
	if err != nil {
		t.Fatalf("ExportSyncRuns: %v", err)
	}
	rows, err := book.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("want header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Run ID" || rows[0][9] != "Error" {
		t.Errorf("header row = %v", rows[0])
	}
	if rows[1][1] != models.EntityClassTransactions {
		t.Errorf("first data row = %v", rows[1])
	}
	if rows[2][9] != errText {
		t.Errorf("error column = %v", rows[2])
	}
}

func TestExportSyncRuns_Empty(t *testing.T) {
	book, err := ExportSyncRuns(nil)
	if err != nil {
		t.Fatalf("ExportSyncRuns: %v", err)
	}
	rows, err := book.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("want header only, got %d rows", len(rows))
	}
}
