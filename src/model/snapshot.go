package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the latest-state slot for one account. Only the
// most recent equity matters for reconciliation, so snapshots are
// overwritten in place rather than appended.
type AccountSnapshot struct {
	AccountNumber string          `gorm:"size:32;primaryKey" json:"account_number"`
	Equity        decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"equity"`
	Balance       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"balance"`
	OpenPositions int             `gorm:"not null" json:"open_positions"`
	PolledAt      time.Time       `gorm:"not null" json:"polled_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName controls the exact table name for account snapshots.
func (AccountSnapshot) TableName() string {
	return "account_snapshots"
}
