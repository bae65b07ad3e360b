package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is the semantic class derived for a raw record. Downstream
// code matches these exhaustively; there is no default-to-deposit path.
type Category string

const (
	CategoryTrade            Category = "trade"
	CategoryClientDeposit    Category = "client_deposit"
	CategoryClientWithdrawal Category = "client_withdrawal"
	CategoryProfitExtraction Category = "profit_extraction"
	CategoryInternalTransfer Category = "internal_transfer"
	CategoryFee              Category = "fee"
	CategoryUnclassified     Category = "unclassified"
)

// Raw type codes as reported by the terminals.
const (
	TypeCodeBuy     = "buy"
	TypeCodeSell    = "sell"
	TypeCodeBalance = "balance"
	TypeCodeCredit  = "credit"
)

// RawRecord is one transaction exactly as a terminal reported it, plus
// the stored classification. (Ticket, AccountNumber) is the natural key:
// terminals re-deliver overlapping history windows and may correct
// fields for a ticket they already reported, so ingestion upserts on
// that key. FirstSeenAt survives every upsert for audit ordering.
type RawRecord struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Ticket        int64           `gorm:"not null;uniqueIndex:idx_records_ticket_account" json:"ticket"`
	AccountNumber string          `gorm:"size:32;not null;uniqueIndex:idx_records_ticket_account;index" json:"account_number"`
	RecordTime    time.Time       `gorm:"not null;index" json:"record_time"`
	TypeCode      string          `gorm:"size:20;not null" json:"type_code"`
	Volume        decimal.Decimal `gorm:"type:numeric(30,10)" json:"volume"`
	Price         decimal.Decimal `gorm:"type:numeric(30,10)" json:"price"`
	Delta         decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"delta"`
	Annotation    string          `gorm:"size:512" json:"annotation"`

	Category          Category  `gorm:"size:32;not null;default:unclassified;index" json:"category"`
	ClassifierVersion int       `gorm:"not null;default:0" json:"classifier_version"`
	FirstSeenAt       time.Time `gorm:"not null" json:"first_seen_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName controls the exact table name for raw records.
func (RawRecord) TableName() string {
	return "raw_records"
}

// IsTradeType reports whether the raw type code is a market-side
// operation rather than a balance operation.
func (r *RawRecord) IsTradeType() bool {
	return r.TypeCode == TypeCodeBuy || r.TypeCode == TypeCodeSell
}
