package model

import "github.com/shopspring/decimal"

// RollupGroup selects which tag a rollup aggregates over.
type RollupGroup string

const (
	RollupByFund    RollupGroup = "fund"
	RollupByManager RollupGroup = "manager"
)

// Rollup is a deposit-weighted aggregate of ledger state across the
// accounts sharing one fund or manager tag. It is always derived from a
// single completed pass, never persisted.
type Rollup struct {
	GroupBy           RollupGroup     `json:"group_by"`
	Key               string          `json:"key"`
	AccountCount      int             `json:"account_count"`
	TotalCapitalBasis decimal.Decimal `json:"total_capital_basis"`
	TotalTruePnL      decimal.Decimal `json:"total_true_pnl"`
	WeightedReturnPct decimal.Decimal `json:"weighted_return_pct"`
}
