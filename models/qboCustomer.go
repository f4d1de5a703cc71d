package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QboCustomer is the local projection of a QuickBooks Customer record.
// Only a handful of fields are projected into columns; the untouched
// payload is kept in RawJSON so later schema additions need no re-sync.
type QboCustomer struct {
	ID            int              `gorm:"primary_key" json:"id"`
	RealmId       string           `gorm:"size:32;not null;uniqueIndex:idx_qbo_customer,priority:1" json:"realm_id"`
	QboId         string           `gorm:"size:32;not null;uniqueIndex:idx_qbo_customer,priority:2" json:"qbo_id"`
	DisplayName   *string          `gorm:"size:255" json:"display_name"`
	Email         *string          `gorm:"size:255" json:"email"`
	Active        *bool            `json:"active"`
	IsProject     bool             `gorm:"not null;default:false" json:"is_project"`
	ParentQboId   *string          `gorm:"size:32" json:"parent_qbo_id"`
	Balance       *decimal.Decimal `gorm:"type:decimal(20,6)" json:"balance"`
	LastUpdatedAt *time.Time       `json:"last_updated_at"`
	RawJSON       []byte           `gorm:"type:json;not null" json:"raw"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QboCustomer) TableName() string {
	return "qbo_customers"
}
