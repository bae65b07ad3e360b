package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one tradable account on one external terminal, plus the
// business metadata attached at onboarding. CapitalBasis is set once at
// onboarding and is never touched by polling.
type Account struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Number       string          `gorm:"size:32;uniqueIndex;not null" json:"number"`
	TerminalName string          `gorm:"size:60;not null;index" json:"terminal_name"`
	Manager      string          `gorm:"size:120;index" json:"manager"`
	Fund         string          `gorm:"size:120;index" json:"fund"`
	CapitalBasis decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"capital_basis"`
	// IsExtraction marks a designated separation account: transfers into
	// it are profit leaving the trading account, not client money moving.
	IsExtraction bool      `gorm:"not null;default:false" json:"is_extraction"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName controls the exact table name for accounts.
func (Account) TableName() string {
	return "accounts"
}
