package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fundledger/src/database"
	"fundledger/src/health"
	"fundledger/src/poller"
	"fundledger/src/reconcile"
	"fundledger/src/registry"
	"fundledger/src/repository"
	"fundledger/src/server"
)

type Service struct {
	Log *logrus.Entry
}

// Start brings up the whole service: poll workers, the periodic
// reconcile loop and the query server. It blocks until the server is
// shut down, then stops the background loops.
func (s *Service) Start() error {
	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := registry.NewRegistry(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to load account registry")
		return err
	}

	records := repository.NewRecordRepository()
	ledgers := repository.NewLedgerRepository()

	healthCfg := health.GetConfig()
	monitors := health.NewSet(healthCfg, health.NewHTTPRemediator(healthCfg.RemediationBaseURL))

	p := poller.NewPoller(poller.GetConfig(), reg, records, func(group string) poller.HealthSink {
		return monitors.Monitor(group)
	})
	go p.Run(ctx)

	engine := reconcile.NewEngine(reg, records, ledgers)
	go s.runReconcileLoop(ctx, engine, reconcile.GetConfig().Interval)

	server.StartServer(server.GetConfig().Port, ledgers, records, monitors)
	return nil
}

func (s *Service) runReconcileLoop(ctx context.Context, engine *reconcile.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := engine.RunPass(ctx); err != nil && ctx.Err() == nil {
			s.Log.WithError(err).Error("Reconciliation pass failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
