package reclassify

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"fundledger/src/classifier"
	"fundledger/src/database"
	"fundledger/src/model"
	"fundledger/src/reconcile"
	"fundledger/src/registry"
	"fundledger/src/repository"
)

type Reclassify struct {
	Log *logrus.Entry
}

// Start replays the current classifier over the full raw history and
// then runs one reconciliation pass so ledger states reflect the new
// categories. Raw records themselves are never mutated beyond their
// category and version stamp.
func (r *Reclassify) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
		return err
	}

	reg, err := registry.NewRegistry(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to load account registry")
		return err
	}

	records := repository.NewRecordRepository()

	changed, err := records.ReclassifyAll(ctx, classifier.Version, func(rec *model.RawRecord) model.Category {
		return classifier.Classify(rec, reg)
	})
	if err != nil {
		r.Log.WithError(err).Error("Classification replay failed")
		return err
	}
	r.Log.WithFields(logrus.Fields{
		"changed": changed,
		"version": classifier.Version,
	}).Info("Classification replay completed")

	engine := reconcile.NewEngine(reg, records, repository.NewLedgerRepository())
	pass, err := engine.RunPass(ctx)
	if err != nil {
		r.Log.WithError(err).Error("Post-replay reconciliation failed")
		return err
	}
	r.Log.WithField("pass_id", pass.ID).Info("Post-replay reconciliation completed")

	return nil
}
