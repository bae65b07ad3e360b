package aggregator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fundledger/src/model"
)

// InvariantViolationError reports a rollup whose constituents do not
// add up. The offending account is always named: a silently wrong
// aggregate is worse than no aggregate.
type InvariantViolationError struct {
	GroupBy       model.RollupGroup
	Key           string
	AccountNumber string
	Reason        string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("rollup invariant violation (%s=%q, account=%s): %s",
		e.GroupBy, e.Key, e.AccountNumber, e.Reason)
}

// Aggregate rolls ledger states up by fund or manager tag, producing a
// deposit-weighted return per group. Two runtime invariants hold before
// anything is returned: every account carries the grouping tag, and the
// independently recomputed constituent sum matches each rollup total
// exactly. A violation aborts the whole aggregation.
func Aggregate(states []model.LedgerState, groupBy model.RollupGroup) ([]model.Rollup, error) {
	rollups := make(map[string]*model.Rollup)

	for _, state := range states {
		key, err := groupKey(state, groupBy)
		if err != nil {
			return nil, err
		}

		r, ok := rollups[key]
		if !ok {
			r = &model.Rollup{
				GroupBy:           groupBy,
				Key:               key,
				TotalCapitalBasis: decimal.Zero,
				TotalTruePnL:      decimal.Zero,
			}
			rollups[key] = r
		}

		r.AccountCount++
		r.TotalCapitalBasis = r.TotalCapitalBasis.Add(state.CumulativeDeposits)
		r.TotalTruePnL = r.TotalTruePnL.Add(state.TruePnL)
	}

	if err := verifyBasisSums(states, rollups, groupBy); err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "Aggregator",
			"group_by":  groupBy,
		}).WithError(err).Error("Rollup invariant violated, aborting aggregation")
		return nil, err
	}

	out := make([]model.Rollup, 0, len(rollups))
	for _, r := range rollups {
		if r.TotalCapitalBasis.IsPositive() {
			r.WeightedReturnPct = r.TotalTruePnL.Div(r.TotalCapitalBasis).Mul(decimal.NewFromInt(100))
		} else {
			r.WeightedReturnPct = decimal.Zero
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out, nil
}

func groupKey(state model.LedgerState, groupBy model.RollupGroup) (string, error) {
	var key string
	switch groupBy {
	case model.RollupByFund:
		key = state.Fund
	case model.RollupByManager:
		key = state.Manager
	default:
		return "", fmt.Errorf("unknown rollup group %q", groupBy)
	}

	if key == "" {
		return "", &InvariantViolationError{
			GroupBy:       groupBy,
			AccountNumber: state.AccountNumber,
			Reason:        "account is missing its " + string(groupBy) + " tag",
		}
	}
	return key, nil
}

// verifyBasisSums re-walks the constituents and checks each rollup's
// capital basis against an independently accumulated sum. Exact decimal
// equality; no tolerance, no silent drift.
func verifyBasisSums(states []model.LedgerState, rollups map[string]*model.Rollup, groupBy model.RollupGroup) error {
	recomputed := make(map[string]decimal.Decimal, len(rollups))
	lastAccount := make(map[string]string, len(rollups))

	for _, state := range states {
		key, err := groupKey(state, groupBy)
		if err != nil {
			return err
		}
		recomputed[key] = recomputed[key].Add(state.CumulativeDeposits)
		lastAccount[key] = state.AccountNumber
	}

	for key, r := range rollups {
		if !recomputed[key].Equal(r.TotalCapitalBasis) {
			return &InvariantViolationError{
				GroupBy:       groupBy,
				Key:           key,
				AccountNumber: lastAccount[key],
				Reason: fmt.Sprintf("constituent basis sum %s does not equal rollup total %s",
					recomputed[key], r.TotalCapitalBasis),
			}
		}
	}
	return nil
}
