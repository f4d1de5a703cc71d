package models

import "time"

// QboConnection holds the OAuth2 token pair for one QuickBooks Online
// company (realm). The row is overwritten on every refresh; when the realm
// ever changes a second row appears, and the latest row by id is the one
// that counts.
type QboConnection struct {
	ID           int       `gorm:"primary_key" json:"id"`
	RealmId      string    `gorm:"size:32;not null;unique" json:"realm_id"`
	AccessToken  string    `gorm:"type:text;not null" json:"-"`
	RefreshToken string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt    time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QboConnection) TableName() string {
	return "qbo_connections"
}
