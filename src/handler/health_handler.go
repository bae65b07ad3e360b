package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"fundledger/src/model"
)

type healthReporter interface {
	States() []model.HealthState
	Reset(group string) error
}

// GetTerminalHealthHandler serves the current state of every terminal
// group's health monitor.
func GetTerminalHealthHandler(monitors healthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, monitors.States())
	}
}

// ResetTerminalHealthHandler acknowledges an escalated terminal group
// and returns its monitor to the healthy state.
func ResetTerminalHealthHandler(monitors healthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group := chi.URLParam(r, "group")

		if err := monitors.Reset(group); err != nil {
			http.Error(w, "terminal group not found", http.StatusNotFound)
			return
		}

		logger.WithFields(logger.Fields{"component": "handler", "group": group}).
			Info("terminal group health manually reset")
		w.WriteHeader(http.StatusNoContent)
	}
}
