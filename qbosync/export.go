package qbosync

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"bitbucket.org/onpointdev/ops_backend/models"
)

const exportSheet = "Sync Runs"

// ExportSyncRuns renders the run ledger into a workbook, newest first,
// mirroring the JSON history endpoint for people who live in spreadsheets.
func ExportSyncRuns(runs []*models.SyncRun) (*excelize.File, error) {
	book := excelize.NewFile()
	index, err := book.NewSheet(exportSheet)
	if err != nil {
		return nil, err
	}
	book.SetActiveSheet(index)
	if err := book.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []string{
		"Run ID", "Entity Class", "Triggered By", "Correlation ID",
		"Started At", "Finished At", "Success", "Fetched", "Upserted", "Error",
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := book.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, err
		}
	}

	for rowIdx, run := range runs {
		values := []interface{}{
			run.ID,
			run.EntityClass,
			run.TriggeredBy,
			run.CorrelationId,
			run.StartedAt.Format(time.RFC3339),
			formatTimePtr(run.FinishedAt),
			run.Success,
			run.FetchedCount,
			run.UpsertedCount,
			stringPtrValue(run.ErrorText),
		}
		for colIdx, v := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return nil, err
			}
			if err := book.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	if err := book.SetColWidth(exportSheet, "A", "J", 22); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}
	return book, nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func stringPtrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
