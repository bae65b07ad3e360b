package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fundledger/src/database"
	"fundledger/src/model"
)

// RecordRepository handles ingestion and queries for raw transaction
// records and account snapshots.
type RecordRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRecordRepository creates a new repository instance using the main read/write database.
func NewRecordRepository() *RecordRepository {
	logger.WithField("component", "RecordRepository").
		Info("Creating new RecordRepository with MainDB")

	return &RecordRepository{
		db:  database.MainDB,
		now: time.Now,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *RecordRepository) WithDB(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db, now: r.nowFunc()}
}

func (r *RecordRepository) nowFunc() func() time.Time {
	if r.now == nil {
		return time.Now
	}
	return r.now
}

// recordKey is the natural key of a raw record.
type recordKey struct {
	Ticket        int64
	AccountNumber string
}

// RecordView is the read surface handed out by ReadConsistent. Every
// read through one view observes the same committed state.
type RecordView interface {
	ListByAccount(ctx context.Context, accountNumber string) ([]model.RawRecord, error)
	LatestSnapshot(ctx context.Context, accountNumber string) (*model.AccountSnapshot, error)
}

// ReadConsistent runs fn against a single consistent view of records
// and snapshots. An ingest cycle committing while fn runs is either
// fully visible to every read in fn or to none of them, so a
// reconciliation pass can never pair a snapshot from one cycle with a
// record list from another.
func (r *RecordRepository) ReadConsistent(ctx context.Context, fn func(RecordView) error) error {
	// Repeatable read pins the postgres snapshot for the whole
	// transaction. sqlite rejects explicit isolation levels; its
	// transactions are serializable already.
	var opts []*sql.TxOptions
	if r.db.Name() != "sqlite" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithDB(tx))
	}, opts...)
}

// IngestCycle writes one completed poll cycle: every raw record plus the
// latest-state snapshot per account, in a single transaction so readers
// never observe a half-ingested cycle. Records are upserted on the
// (ticket, account_number) key: terminals re-deliver overlapping history
// windows and may correct fields for an already-reported ticket, so
// reported fields are overwritten on conflict while first_seen_at is
// preserved for audit ordering. Nothing is ever deleted.
func (r *RecordRepository) IngestCycle(
	ctx context.Context,
	snapshots []model.AccountSnapshot,
	records []model.RawRecord,
) (inserted int, updated int, err error) {

	now := r.nowFunc()()

	// Postgres rejects a single upsert touching the same row twice, so a
	// terminal repeating a ticket within one history response must be
	// collapsed here. Last occurrence wins, matching upsert semantics.
	records = dedupeRecords(records)
	snapshots = dedupeSnapshots(snapshots)

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := r.existingKeys(tx, records)
		if err != nil {
			return err
		}

		for i := range records {
			records[i].FirstSeenAt = now
			if _, ok := existing[recordKey{records[i].Ticket, records[i].AccountNumber}]; ok {
				updated++
			} else {
				inserted++
			}
		}

		if len(records) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "ticket"}, {Name: "account_number"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"record_time", "type_code", "volume", "price", "delta",
					"annotation", "category", "classifier_version", "updated_at",
				}),
			}).Create(&records).Error; err != nil {
				return fmt.Errorf("failed to upsert raw records: %w", err)
			}
		}

		for i := range snapshots {
			snapshots[i].PolledAt = now
		}
		if len(snapshots) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_number"}},
				UpdateAll: true,
			}).Create(&snapshots).Error; err != nil {
				return fmt.Errorf("failed to upsert snapshots: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "RecordRepository",
			"op":      "IngestCycle",
			"records": len(records),
		}).WithError(err).Error("Failed to ingest poll cycle")
		return 0, 0, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "RecordRepository",
		"op":        "IngestCycle",
		"inserted":  inserted,
		"updated":   updated,
		"snapshots": len(snapshots),
	}).Info("Poll cycle ingested")

	return inserted, updated, nil
}

// dedupeRecords collapses duplicate (ticket, account_number) keys,
// keeping the last occurrence and the original order of first sight.
func dedupeRecords(records []model.RawRecord) []model.RawRecord {
	seen := make(map[recordKey]int, len(records))
	out := records[:0:0]
	for _, rec := range records {
		key := recordKey{rec.Ticket, rec.AccountNumber}
		if i, ok := seen[key]; ok {
			out[i] = rec
			continue
		}
		seen[key] = len(out)
		out = append(out, rec)
	}
	return out
}

// dedupeSnapshots collapses duplicate account numbers, last wins.
func dedupeSnapshots(snapshots []model.AccountSnapshot) []model.AccountSnapshot {
	seen := make(map[string]int, len(snapshots))
	out := snapshots[:0:0]
	for _, snap := range snapshots {
		if i, ok := seen[snap.AccountNumber]; ok {
			out[i] = snap
			continue
		}
		seen[snap.AccountNumber] = len(out)
		out = append(out, snap)
	}
	return out
}

// existingKeys returns the natural keys among the given records that are
// already present, read inside the ingest transaction.
func (r *RecordRepository) existingKeys(tx *gorm.DB, records []model.RawRecord) (map[recordKey]struct{}, error) {
	out := make(map[recordKey]struct{}, len(records))
	if len(records) == 0 {
		return out, nil
	}

	pairs := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		pairs = append(pairs, []interface{}{rec.Ticket, rec.AccountNumber})
	}

	var rows []model.RawRecord
	if err := tx.Select("ticket", "account_number").
		Where("(ticket, account_number) IN ?", pairs).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read existing record keys: %w", err)
	}

	for _, row := range rows {
		out[recordKey{row.Ticket, row.AccountNumber}] = struct{}{}
	}
	return out, nil
}

// ListByAccount returns every raw record for an account in record-time
// order. Reconciliation always recomputes over the full history.
func (r *RecordRepository) ListByAccount(ctx context.Context, accountNumber string) ([]model.RawRecord, error) {
	var records []model.RawRecord

	err := r.db.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		Order("record_time ASC, ticket ASC").
		Find(&records).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":           "RecordRepository",
			"op":             "ListByAccount",
			"account_number": accountNumber,
		}).WithError(err).Error("Failed to list records")
		return nil, err
	}

	return records, nil
}

// ListUnclassified returns records pending manual review, oldest first.
func (r *RecordRepository) ListUnclassified(ctx context.Context, limit int) ([]model.RawRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []model.RawRecord

	err := r.db.WithContext(ctx).
		Where("category = ?", model.CategoryUnclassified).
		Order("record_time ASC, id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "RecordRepository",
			"op":    "ListUnclassified",
			"limit": limit,
		}).WithError(err).Error("Failed to list unclassified records")
		return nil, err
	}

	return records, nil
}

// LatestSnapshot returns the latest-state slot for an account.
// Returns (nil, nil) if the account has never been polled.
func (r *RecordRepository) LatestSnapshot(ctx context.Context, accountNumber string) (*model.AccountSnapshot, error) {
	var snap model.AccountSnapshot

	err := r.db.WithContext(ctx).
		Where("account_number = ?", accountNumber).
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":           "RecordRepository",
			"op":             "LatestSnapshot",
			"account_number": accountNumber,
		}).WithError(err).Error("Failed to fetch snapshot")
		return nil, err
	}

	return &snap, nil
}

// ReclassifyAll replays a classification function over the full raw
// history and persists categories that changed. classify must be pure;
// version is stamped on every visited row.
func (r *RecordRepository) ReclassifyAll(
	ctx context.Context,
	version int,
	classify func(*model.RawRecord) model.Category,
) (changed int, err error) {

	var records []model.RawRecord
	if err := r.db.WithContext(ctx).
		FindInBatches(&records, 500, func(tx *gorm.DB, _ int) error {
			for i := range records {
				rec := &records[i]
				category := classify(rec)
				if category == rec.Category && rec.ClassifierVersion == version {
					continue
				}
				if err := tx.Model(&model.RawRecord{}).
					Where("id = ?", rec.ID).
					Updates(map[string]interface{}{
						"category":           category,
						"classifier_version": version,
					}).Error; err != nil {
					return err
				}
				changed++
			}
			return nil
		}).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "RecordRepository",
			"op":   "ReclassifyAll",
		}).WithError(err).Error("Failed to replay classification")
		return changed, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "RecordRepository",
		"op":      "ReclassifyAll",
		"version": version,
		"changed": changed,
	}).Info("Classification replay completed")

	return changed, nil
}
