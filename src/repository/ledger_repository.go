package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fundledger/src/database"
	"fundledger/src/model"
)

// ErrNoCompletedPass is returned by reads before the first
// reconciliation pass has finished.
var ErrNoCompletedPass = errors.New("no completed reconciliation pass")

// LedgerRepository persists reconciliation passes and serves the
// read-only ledger queries. Every read resolves against the latest
// *completed* pass, so an in-progress run is never visible.
type LedgerRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedgerRepository creates a new repository instance using the main read/write database.
func NewLedgerRepository() *LedgerRepository {
	logger.WithField("component", "LedgerRepository").
		Info("Creating new LedgerRepository with MainDB")

	return &LedgerRepository{
		db:  database.MainDB,
		now: time.Now,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *LedgerRepository) WithDB(db *gorm.DB) *LedgerRepository {
	now := r.now
	if now == nil {
		now = time.Now
	}
	return &LedgerRepository{db: db, now: now}
}

// SavePass writes one reconciliation pass and all of its ledger states
// atomically, marking the pass completed in the same transaction.
func (r *LedgerRepository) SavePass(ctx context.Context, pass model.LedgerPass, states []model.LedgerState) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&pass).Error; err != nil {
			return err
		}

		for i := range states {
			states[i].PassID = pass.ID
		}
		if len(states) > 0 {
			if err := tx.Create(&states).Error; err != nil {
				return err
			}
		}

		completed := r.now()
		return tx.Model(&model.LedgerPass{}).
			Where("id = ?", pass.ID).
			Update("completed_at", completed).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "LedgerRepository",
			"op":      "SavePass",
			"pass_id": pass.ID,
			"states":  len(states),
		}).WithError(err).Error("Failed to save reconciliation pass")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "LedgerRepository",
		"op":      "SavePass",
		"pass_id": pass.ID,
		"states":  len(states),
	}).Info("Reconciliation pass saved")

	return nil
}

// latestCompletedPassID resolves the pass all reads are served from.
func (r *LedgerRepository) latestCompletedPassID(ctx context.Context) (string, error) {
	var pass model.LedgerPass

	err := r.db.WithContext(ctx).
		Where("completed_at IS NOT NULL").
		Order("as_of DESC").
		First(&pass).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoCompletedPass
		}
		return "", err
	}

	return pass.ID, nil
}

// GetLedger returns the ledger state for one account from the latest
// completed pass. Returns (nil, nil) if the account has no state there.
func (r *LedgerRepository) GetLedger(ctx context.Context, accountNumber string) (*model.LedgerState, error) {
	passID, err := r.latestCompletedPassID(ctx)
	if err != nil {
		return nil, err
	}

	var state model.LedgerState
	err = r.db.WithContext(ctx).
		Where("pass_id = ? AND account_number = ?", passID, accountNumber).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":           "LedgerRepository",
			"op":             "GetLedger",
			"account_number": accountNumber,
		}).WithError(err).Error("Failed to fetch ledger state")
		return nil, err
	}

	return &state, nil
}

// ListLatest returns every ledger state of the latest completed pass,
// ordered by account number.
func (r *LedgerRepository) ListLatest(ctx context.Context) ([]model.LedgerState, error) {
	passID, err := r.latestCompletedPassID(ctx)
	if err != nil {
		return nil, err
	}

	var states []model.LedgerState
	err = r.db.WithContext(ctx).
		Where("pass_id = ?", passID).
		Order("account_number ASC").
		Find(&states).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "LedgerRepository",
			"op":   "ListLatest",
		}).WithError(err).Error("Failed to list ledger states")
		return nil, err
	}

	return states, nil
}
