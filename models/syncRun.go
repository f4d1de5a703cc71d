package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// SyncRun is the ledger of every sync attempt. A row is created when the
// run starts and finalized exactly once when it ends; the most recent
// successful finish time per entity class is the incremental watermark.
type SyncRun struct {
	ID            int        `gorm:"primary_key" json:"id"`
	EntityClass   string     `gorm:"size:20;not null;index" json:"entity_class"`
	TriggeredBy   string     `gorm:"size:20;not null" json:"triggered_by"`
	CorrelationId string     `gorm:"size:36" json:"correlation_id"`
	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	Success       bool       `gorm:"not null;default:false" json:"success"`
	FetchedCount  int        `gorm:"not null;default:0" json:"fetched_count"`
	UpsertedCount int        `gorm:"not null;default:0" json:"upserted_count"`
	ErrorText     *string    `gorm:"type:text" json:"error_text"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

// LastSuccessfulFinish returns the finish time of the most recent
// successful run for the entity class, or nil when no run has ever
// succeeded (first-ever sync fetches full history).
func LastSuccessfulFinish(ctx context.Context, db *gorm.DB, entityClass string) (*time.Time, error) {
	var run SyncRun
	err := db.WithContext(ctx).
		Where("entity_class = ? AND success = ? AND finished_at IS NOT NULL", entityClass, true).
		Order("finished_at DESC").
		Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return run.FinishedAt, nil
}

// LatestSyncRun returns the newest run row regardless of outcome, or nil.
func LatestSyncRun(ctx context.Context, db *gorm.DB, entityClass string) (*SyncRun, error) {
	var run SyncRun
	dbCtx := db.WithContext(ctx)
	if entityClass != "" {
		dbCtx = dbCtx.Where("entity_class = ?", entityClass)
	}
	err := dbCtx.Order("started_at DESC").Take(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// GetSyncRuns lists run history, newest first.
func GetSyncRuns(ctx context.Context, db *gorm.DB, limit int) ([]*SyncRun, error) {
	if limit <= 0 {
		limit = 100
	}
	var runs []*SyncRun
	err := db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
