package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerPass groups the ledger states produced by one reconciliation
// run. Queries only ever read states belonging to the latest completed
// pass, so readers never observe a half-written run.
type LedgerPass struct {
	ID          string     `gorm:"size:36;primaryKey" json:"id"`
	AsOf        time.Time  `gorm:"not null;index" json:"as_of"`
	CompletedAt *time.Time `gorm:"index" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName controls the exact table name for ledger passes.
func (LedgerPass) TableName() string {
	return "ledger_passes"
}

// LedgerState is the derived financial summary for one account within
// one reconciliation pass. It is recomputed from scratch every pass and
// never hand-edited.
type LedgerState struct {
	ID            uint   `gorm:"primaryKey" json:"-"`
	PassID        string `gorm:"size:36;not null;uniqueIndex:idx_ledger_pass_account" json:"pass_id"`
	AccountNumber string `gorm:"size:32;not null;uniqueIndex:idx_ledger_pass_account;index" json:"account_number"`
	Manager       string `gorm:"size:120;index" json:"manager"`
	Fund          string `gorm:"size:120;index" json:"fund"`

	// OnboardedBasis is the account's initial capital basis carried over
	// from onboarding, for auditing against the derived deposit sum.
	OnboardedBasis        decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"onboarded_basis"`
	CurrentEquity         decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"current_equity"`
	CumulativeDeposits    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"cumulative_deposits"`
	CumulativeWithdrawals decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"cumulative_withdrawals"`
	CumulativeExtractions decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"cumulative_extractions"`
	// Transfers are reallocation of already-counted capital; tracked for
	// traceability, excluded from the deposit/extraction sums.
	CumulativeTransfers decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"cumulative_transfers"`
	TruePnL             decimal.Decimal `gorm:"column:true_pnl;type:numeric(30,10);not null" json:"true_pnl"`
	ReturnPct           decimal.Decimal `gorm:"type:numeric(20,10);not null" json:"return_pct"`

	ComputedAt time.Time `gorm:"not null" json:"computed_at"`
	CreatedAt  time.Time `json:"-"`
}

// TableName controls the exact table name for ledger states.
func (LedgerState) TableName() string {
	return "ledger_states"
}
