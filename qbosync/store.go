package qbosync

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/onpointdev/ops_backend/models"
)

type syncStore interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	FinishRun(ctx context.Context, run *models.SyncRun) error
	LastSuccessfulFinish(ctx context.Context, entityClass string) (*time.Time, error)
	UpsertCustomer(ctx context.Context, row *models.QboCustomer) (int, error)
	UpsertTransaction(ctx context.Context, header *models.QboTransaction, lines []models.QboTransactionLine) (int, error)
}

type gormSyncStore struct {
	db *gorm.DB
}

func (s gormSyncStore) CreateRun(ctx context.Context, run *models.SyncRun) error {
	return s.db.WithContext(ctx).Create(run).Error
}

func (s gormSyncStore) FinishRun(ctx context.Context, run *models.SyncRun) error {
	return s.db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"finished_at":    run.FinishedAt,
		"success":        run.Success,
		"fetched_count":  run.FetchedCount,
		"upserted_count": run.UpsertedCount,
		"error_text":     run.ErrorText,
	}).Error
}

func (s gormSyncStore) LastSuccessfulFinish(ctx context.Context, entityClass string) (*time.Time, error) {
	return models.LastSuccessfulFinish(ctx, s.db, entityClass)
}

// upsertAssignments builds the ON DUPLICATE KEY UPDATE list for the given
// columns, plus an id self-assignment through LAST_INSERT_ID so gorm gets
// the surviving row's id back on the update path too.
func upsertAssignments(columns []string) clause.Set {
	set := clause.AssignmentColumns(columns)
	return append(set, clause.Assignment{
		Column: clause.Column{Name: "id"},
		Value:  gorm.Expr("LAST_INSERT_ID(id)"),
	})
}

func (s gormSyncStore) UpsertCustomer(ctx context.Context, row *models.QboCustomer) (int, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "realm_id"}, {Name: "qbo_id"}},
		DoUpdates: upsertAssignments([]string{
			"display_name", "email", "active", "is_project", "parent_qbo_id",
			"balance", "last_updated_at", "raw_json", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

// UpsertTransaction writes the header and all its lines in one
// transaction, so a record is never visible half-updated.
func (s gormSyncStore) UpsertTransaction(ctx context.Context, header *models.QboTransaction, lines []models.QboTransactionLine) (int, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "realm_id"}, {Name: "entity_type"}, {Name: "qbo_id"}},
			DoUpdates: upsertAssignments([]string{
				"doc_number", "txn_date", "total_amount", "balance",
				"customer_qbo_id", "vendor_qbo_id", "last_updated_at",
				"raw_json", "updated_at",
			}),
		}).Create(header).Error
		if err != nil {
			return err
		}
		for i := range lines {
			lines[i].QboTransactionId = header.ID
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "qbo_transaction_id"}, {Name: "line_id"}},
				DoUpdates: upsertAssignments([]string{
					"line_num", "description", "amount", "detail_type",
					"item_qbo_id", "account_qbo_id", "class_qbo_id",
					"department_qbo_id", "customer_qbo_id", "vendor_qbo_id",
					"qty", "unit_price", "updated_at",
				}),
			}).Create(&lines[i]).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return header.ID, nil
}
