package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QboTransaction is the header row shared by all ten synced transaction
// entity types; EntityType scopes the natural key because QuickBooks ids
// are only unique within an entity type.
type QboTransaction struct {
	ID            int              `gorm:"primary_key" json:"id"`
	RealmId       string           `gorm:"size:32;not null;uniqueIndex:idx_qbo_transaction,priority:1" json:"realm_id"`
	EntityType    string           `gorm:"size:30;not null;uniqueIndex:idx_qbo_transaction,priority:2" json:"entity_type"`
	QboId         string           `gorm:"size:32;not null;uniqueIndex:idx_qbo_transaction,priority:3" json:"qbo_id"`
	DocNumber     *string          `gorm:"size:50" json:"doc_number"`
	TxnDate       *time.Time       `gorm:"type:date" json:"txn_date"`
	TotalAmount   *decimal.Decimal `gorm:"type:decimal(20,6)" json:"total_amount"`
	Balance       *decimal.Decimal `gorm:"type:decimal(20,6)" json:"balance"`
	CustomerQboId *string          `gorm:"size:32;index" json:"customer_qbo_id"`
	VendorQboId   *string          `gorm:"size:32;index" json:"vendor_qbo_id"`
	LastUpdatedAt *time.Time       `json:"last_updated_at"`
	RawJSON       []byte           `gorm:"type:json;not null" json:"raw"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QboTransaction) TableName() string {
	return "qbo_transactions"
}

// QboTransactionLine is one itemized line under a transaction header.
// LineId falls back to the zero-based position when QuickBooks omits the
// line's own Id, so re-syncing the same record stays idempotent.
// Detail-derived columns are nullable: an unknown detail shape keeps the
// line but contributes no references.
type QboTransactionLine struct {
	ID               int              `gorm:"primary_key" json:"id"`
	QboTransactionId int              `gorm:"not null;uniqueIndex:idx_qbo_txn_line,priority:1" json:"qbo_transaction_id"`
	LineId           string           `gorm:"size:32;not null;uniqueIndex:idx_qbo_txn_line,priority:2" json:"line_id"`
	LineNum          *int             `json:"line_num"`
	Description      *string          `gorm:"size:4000" json:"description"`
	Amount           *decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount"`
	DetailType       *string          `gorm:"size:50" json:"detail_type"`
	ItemQboId        *string          `gorm:"size:32" json:"item_qbo_id"`
	AccountQboId     *string          `gorm:"size:32" json:"account_qbo_id"`
	ClassQboId       *string          `gorm:"size:32" json:"class_qbo_id"`
	DepartmentQboId  *string          `gorm:"size:32" json:"department_qbo_id"`
	CustomerQboId    *string          `gorm:"size:32" json:"customer_qbo_id"`
	VendorQboId      *string          `gorm:"size:32" json:"vendor_qbo_id"`
	Qty              *decimal.Decimal `gorm:"type:decimal(20,6)" json:"qty"`
	UnitPrice        *decimal.Decimal `gorm:"type:decimal(20,6)" json:"unit_price"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QboTransactionLine) TableName() string {
	return "qbo_transaction_lines"
}
