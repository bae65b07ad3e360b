package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fundledger/src/model"
	"fundledger/src/repository"
)

// RecordSource opens consistent read views over the classified history
// and snapshots. Every read a pass makes goes through one view, so a
// poll cycle committing mid-pass can never pair an account's new equity
// with its old record list.
type RecordSource interface {
	ReadConsistent(ctx context.Context, fn func(repository.RecordView) error) error
}

// PassSink persists a completed reconciliation pass.
type PassSink interface {
	SavePass(ctx context.Context, pass model.LedgerPass, states []model.LedgerState) error
}

// AccountSource supplies the onboarded accounts a pass covers.
type AccountSource interface {
	Accounts() []model.Account
}

// Engine derives the true economic position of each account from its
// full classified history plus the latest snapshot. It never reads its
// own previous output, so every pass is a from-scratch recomputation:
// running it twice on unchanged input yields identical states.
type Engine struct {
	accounts AccountSource
	records  RecordSource
	sink     PassSink
	now      func() time.Time
}

// NewEngine wires an engine from its sources.
func NewEngine(accounts AccountSource, records RecordSource, sink PassSink) *Engine {
	return &Engine{
		accounts: accounts,
		records:  records,
		sink:     sink,
		now:      time.Now,
	}
}

// Reconcile computes the ledger state for a single account.
//
//	cumulative_deposits    = Σ delta     where category = client_deposit
//	cumulative_withdrawals = Σ |delta|   where category = client_withdrawal
//	cumulative_extractions = Σ |delta|   where category = profit_extraction
//	true_pnl               = equity + extractions + withdrawals − deposits
//	return_pct             = 100 · true_pnl / deposits   (0 when deposits = 0)
//
// Withdrawals are capital handed back to the client, so they sit on the
// same side of the P&L as extractions while the return denominator stays
// gross deposits. Internal transfers and fees never enter the sums: a
// transfer reallocates capital that was already counted on the sending
// side, so an account funded purely by transfer has a zero basis and its
// true P&L equals its full equity.
func (e *Engine) Reconcile(ctx context.Context, account model.Account) (model.LedgerState, error) {
	var state model.LedgerState
	err := e.records.ReadConsistent(ctx, func(view repository.RecordView) error {
		var err error
		state, err = e.reconcileView(ctx, view, account)
		return err
	})
	return state, err
}

func (e *Engine) reconcileView(ctx context.Context, view repository.RecordView, account model.Account) (model.LedgerState, error) {
	records, err := view.ListByAccount(ctx, account.Number)
	if err != nil {
		return model.LedgerState{}, fmt.Errorf("failed to load records for account %s: %w", account.Number, err)
	}

	snapshot, err := view.LatestSnapshot(ctx, account.Number)
	if err != nil {
		return model.LedgerState{}, fmt.Errorf("failed to load snapshot for account %s: %w", account.Number, err)
	}

	equity := decimal.Zero
	if snapshot != nil {
		equity = snapshot.Equity
	}

	deposits := decimal.Zero
	withdrawals := decimal.Zero
	extractions := decimal.Zero
	transfers := decimal.Zero

	for _, rec := range records {
		switch rec.Category {
		case model.CategoryClientDeposit:
			deposits = deposits.Add(rec.Delta)
		case model.CategoryClientWithdrawal:
			withdrawals = withdrawals.Add(rec.Delta.Abs())
		case model.CategoryProfitExtraction:
			extractions = extractions.Add(rec.Delta.Abs())
		case model.CategoryInternalTransfer:
			transfers = transfers.Add(rec.Delta.Abs())
		case model.CategoryTrade, model.CategoryFee, model.CategoryUnclassified:
			// Trades are already reflected in equity; fees are not client
			// capital; unclassified must never leak into the sums.
		}
	}

	truePnL := equity.Add(extractions).Add(withdrawals).Sub(deposits)

	returnPct := decimal.Zero
	if deposits.IsPositive() {
		returnPct = truePnL.Div(deposits).Mul(decimal.NewFromInt(100))
	}

	// Derived deposits should at least cover the onboarding basis once
	// history is fully ingested; falling short means records are missing
	// or misclassified for this account.
	if account.CapitalBasis.IsPositive() && deposits.LessThan(account.CapitalBasis) {
		logger.WithFields(map[string]interface{}{
			"component":       "ReconcileEngine",
			"account":         account.Number,
			"onboarded_basis": account.CapitalBasis,
			"deposits":        deposits,
		}).Warn("Derived deposits below onboarded capital basis")
	}

	return model.LedgerState{
		AccountNumber:         account.Number,
		Manager:               account.Manager,
		Fund:                  account.Fund,
		OnboardedBasis:        account.CapitalBasis,
		CurrentEquity:         equity,
		CumulativeDeposits:    deposits,
		CumulativeWithdrawals: withdrawals,
		CumulativeExtractions: extractions,
		CumulativeTransfers:   transfers,
		TruePnL:               truePnL,
		ReturnPct:             returnPct,
		ComputedAt:            e.now(),
	}, nil
}

// RunPass reconciles every onboarded account and persists the batch as
// one pass. All accounts are read through a single consistent view, so
// the pass reflects one point in ingestion time even while poll cycles
// keep committing. Readers only ever see completed passes, so a pass
// that fails midway leaves the previous one in place.
func (e *Engine) RunPass(ctx context.Context) (model.LedgerPass, error) {
	pass := model.LedgerPass{
		ID:   uuid.NewString(),
		AsOf: e.now(),
	}

	accounts := e.accounts.Accounts()
	states := make([]model.LedgerState, 0, len(accounts))

	err := e.records.ReadConsistent(ctx, func(view repository.RecordView) error {
		for _, account := range accounts {
			if err := ctx.Err(); err != nil {
				return err
			}

			state, err := e.reconcileView(ctx, view, account)
			if err != nil {
				logger.WithFields(map[string]interface{}{
					"component": "ReconcileEngine",
					"op":        "RunPass",
					"account":   account.Number,
					"pass_id":   pass.ID,
				}).WithError(err).Error("Reconciliation failed, aborting pass")
				return err
			}
			states = append(states, state)
		}
		return nil
	})
	if err != nil {
		return pass, err
	}

	if err := e.sink.SavePass(ctx, pass, states); err != nil {
		return pass, fmt.Errorf("failed to persist pass %s: %w", pass.ID, err)
	}

	logger.WithFields(map[string]interface{}{
		"component": "ReconcileEngine",
		"op":        "RunPass",
		"pass_id":   pass.ID,
		"accounts":  len(states),
	}).Info("Reconciliation pass completed")

	return pass, nil
}
