package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"fundledger/src/handler"
	"fundledger/src/health"
	"fundledger/src/model"
	"fundledger/src/repository"
)

func StartServer(port string, ledgers *repository.LedgerRepository, records *repository.RecordRepository, monitors *health.Set) {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	r.Get("/accounts/{number}/ledger", handler.GetAccountLedgerHandler(ledgers))
	r.Get("/rollups/funds", handler.GetRollupsHandler(ledgers, model.RollupByFund))
	r.Get("/rollups/managers", handler.GetRollupsHandler(ledgers, model.RollupByManager))
	r.Get("/unclassified", handler.ListUnclassifiedHandler(records))
	r.Get("/health/terminals", handler.GetTerminalHealthHandler(monitors))
	r.Post("/health/terminals/{group}/reset", handler.ResetTerminalHealthHandler(monitors))

	// Graceful server
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
