package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"fundledger/src/aggregator"
	"fundledger/src/model"
	"fundledger/src/repository"
)

type ledgerReader interface {
	GetLedger(ctx context.Context, accountNumber string) (*model.LedgerState, error)
	ListLatest(ctx context.Context) ([]model.LedgerState, error)
}

type unclassifiedLister interface {
	ListUnclassified(ctx context.Context, limit int) ([]model.RawRecord, error)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to write response")
	}
}

// GetAccountLedgerHandler serves the ledger state of one account from
// the last fully completed reconciliation pass.
func GetAccountLedgerHandler(ledgers ledgerReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := chi.URLParam(r, "number")

		state, err := ledgers.GetLedger(r.Context(), number)
		if err != nil {
			if errors.Is(err, repository.ErrNoCompletedPass) {
				http.Error(w, "no reconciliation pass completed yet", http.StatusServiceUnavailable)
				return
			}
			logger.WithError(err).Error("failed to fetch ledger state")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if state == nil {
			http.Error(w, "account not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, state)
	}
}

// GetRollupsHandler serves fund or manager rollups computed over the
// last completed pass. An aggregation invariant violation is a 500 with
// the offending account named; a silently wrong total is never served.
func GetRollupsHandler(ledgers ledgerReader, groupBy model.RollupGroup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states, err := ledgers.ListLatest(r.Context())
		if err != nil {
			if errors.Is(err, repository.ErrNoCompletedPass) {
				http.Error(w, "no reconciliation pass completed yet", http.StatusServiceUnavailable)
				return
			}
			logger.WithError(err).Error("failed to list ledger states")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		rollups, err := aggregator.Aggregate(states, groupBy)
		if err != nil {
			var violation *aggregator.InvariantViolationError
			if errors.As(err, &violation) {
				http.Error(w, violation.Error(), http.StatusInternalServerError)
				return
			}
			logger.WithError(err).Error("failed to aggregate rollups")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, rollups)
	}
}

// ListUnclassifiedHandler serves records awaiting manual review.
func ListUnclassifiedHandler(records unclassifiedLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		out, err := records.ListUnclassified(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list unclassified records")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, out)
	}
}
