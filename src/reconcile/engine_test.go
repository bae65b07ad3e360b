package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fundledger/src/model"
	"fundledger/src/repository"
)

type stubRecords struct {
	records   map[string][]model.RawRecord
	snapshots map[string]*model.AccountSnapshot
}

func (s stubRecords) ReadConsistent(_ context.Context, fn func(repository.RecordView) error) error {
	return fn(s)
}

func (s stubRecords) ListByAccount(_ context.Context, n string) ([]model.RawRecord, error) {
	return s.records[n], nil
}

func (s stubRecords) LatestSnapshot(_ context.Context, n string) (*model.AccountSnapshot, error) {
	return s.snapshots[n], nil
}

type stubAccounts []model.Account

func (s stubAccounts) Accounts() []model.Account { return s }

type capturedPass struct {
	pass   model.LedgerPass
	states []model.LedgerState
	calls  int
}

func (c *capturedPass) SavePass(_ context.Context, pass model.LedgerPass, states []model.LedgerState) error {
	c.pass = pass
	c.states = states
	c.calls++
	return nil
}

func balanceRec(ticket int64, account string, category model.Category, delta string) model.RawRecord {
	return model.RawRecord{
		Ticket:        ticket,
		AccountNumber: account,
		TypeCode:      model.TypeCodeBalance,
		Delta:         decimal.RequireFromString(delta),
		Category:      category,
	}
}

func TestReconcileTruePnLFormula(t *testing.T) {
	account := model.Account{Number: "100500", Manager: "north", Fund: "alpha"}
	src := stubRecords{
		records: map[string][]model.RawRecord{
			"100500": {
				balanceRec(1, "100500", model.CategoryClientDeposit, "16000"),
				balanceRec(2, "100500", model.CategoryClientDeposit, "2151.41"),
				{Ticket: 3, AccountNumber: "100500", TypeCode: model.TypeCodeBuy, Category: model.CategoryTrade, Delta: decimal.RequireFromString("-55")},
			},
		},
		snapshots: map[string]*model.AccountSnapshot{
			"100500": {AccountNumber: "100500", Equity: decimal.RequireFromString("33323.16")},
		},
	}

	engine := NewEngine(stubAccounts{account}, src, &capturedPass{})
	state, err := engine.Reconcile(context.Background(), account)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if !state.CumulativeDeposits.Equal(decimal.RequireFromString("18151.41")) {
		t.Fatalf("expected deposits 18151.41, got %s", state.CumulativeDeposits)
	}
	if !state.TruePnL.Equal(decimal.RequireFromString("15171.75")) {
		t.Fatalf("expected true P&L 15171.75, got %s", state.TruePnL)
	}
}

func TestReconcileExtractionsAddBack(t *testing.T) {
	account := model.Account{Number: "100501", Fund: "alpha"}
	src := stubRecords{
		records: map[string][]model.RawRecord{
			"100501": {
				balanceRec(1, "100501", model.CategoryClientDeposit, "10000"),
				balanceRec(2, "100501", model.CategoryProfitExtraction, "-2500"),
				balanceRec(3, "100501", model.CategoryFee, "-40"),
			},
		},
		snapshots: map[string]*model.AccountSnapshot{
			"100501": {AccountNumber: "100501", Equity: decimal.RequireFromString("9000")},
		},
	}

	engine := NewEngine(stubAccounts{account}, src, &capturedPass{})
	state, err := engine.Reconcile(context.Background(), account)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	// 9000 + 2500 − 10000; the fee never enters the sums.
	if !state.TruePnL.Equal(decimal.RequireFromString("1500")) {
		t.Fatalf("expected true P&L 1500, got %s", state.TruePnL)
	}
	if !state.CumulativeExtractions.Equal(decimal.RequireFromString("2500")) {
		t.Fatalf("expected extractions 2500, got %s", state.CumulativeExtractions)
	}
}

func TestReconcileReinvestedCapitalHasZeroBasis(t *testing.T) {
	// The account's only inbound record is an internal transfer: $5,000
	// routed from a separation account. That is not new client money, so
	// its basis stays zero and its true P&L is the full equity.
	account := model.Account{Number: "100502", Fund: "alpha"}
	src := stubRecords{
		records: map[string][]model.RawRecord{
			"100502": {
				balanceRec(1, "100502", model.CategoryInternalTransfer, "5000"),
			},
		},
		snapshots: map[string]*model.AccountSnapshot{
			"100502": {AccountNumber: "100502", Equity: decimal.RequireFromString("5240.10")},
		},
	}

	engine := NewEngine(stubAccounts{account}, src, &capturedPass{})
	state, err := engine.Reconcile(context.Background(), account)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if !state.CumulativeDeposits.IsZero() {
		t.Fatalf("expected zero deposits, got %s", state.CumulativeDeposits)
	}
	if !state.TruePnL.Equal(decimal.RequireFromString("5240.10")) {
		t.Fatalf("expected true P&L equal to full equity, got %s", state.TruePnL)
	}
	if !state.ReturnPct.IsZero() {
		t.Fatalf("expected zero return for zero basis, got %s", state.ReturnPct)
	}
	if !state.CumulativeTransfers.Equal(decimal.RequireFromString("5000")) {
		t.Fatalf("expected transfer traceability total 5000, got %s", state.CumulativeTransfers)
	}
}

func TestReconcileCarriesOnboardedBasis(t *testing.T) {
	account := model.Account{
		Number:       "100505",
		Fund:         "alpha",
		CapitalBasis: decimal.RequireFromString("16000"),
	}
	src := stubRecords{
		records: map[string][]model.RawRecord{
			"100505": {
				balanceRec(1, "100505", model.CategoryClientDeposit, "16000"),
				balanceRec(2, "100505", model.CategoryClientDeposit, "2151.41"),
			},
		},
		snapshots: map[string]*model.AccountSnapshot{
			"100505": {AccountNumber: "100505", Equity: decimal.RequireFromString("18200")},
		},
	}

	engine := NewEngine(stubAccounts{account}, src, &capturedPass{})
	state, err := engine.Reconcile(context.Background(), account)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if !state.OnboardedBasis.Equal(decimal.RequireFromString("16000")) {
		t.Fatalf("expected onboarded basis 16000 on the state, got %s", state.OnboardedBasis)
	}
	// The return denominator stays the derived deposit sum, not the
	// onboarding figure.
	if !state.CumulativeDeposits.Equal(decimal.RequireFromString("18151.41")) {
		t.Fatalf("expected deposits 18151.41, got %s", state.CumulativeDeposits)
	}
}

func TestReconcileUnclassifiedNeverEntersSums(t *testing.T) {
	account := model.Account{Number: "100503", Fund: "alpha"}
	src := stubRecords{
		records: map[string][]model.RawRecord{
			"100503": {
				balanceRec(1, "100503", model.CategoryClientDeposit, "1000"),
				balanceRec(2, "100503", model.CategoryUnclassified, "812.77"),
			},
		},
		snapshots: map[string]*model.AccountSnapshot{
			"100503": {AccountNumber: "100503", Equity: decimal.RequireFromString("1900")},
		},
	}

	engine := NewEngine(stubAccounts{account}, src, &capturedPass{})
	state, err := engine.Reconcile(context.Background(), account)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	if !state.CumulativeDeposits.Equal(decimal.RequireFromString("1000")) {
		t.Fatalf("unclassified record leaked into deposits: %s", state.CumulativeDeposits)
	}
	if !state.TruePnL.Equal(decimal.RequireFromString("900")) {
		t.Fatalf("expected true P&L 900, got %s", state.TruePnL)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	account := model.Account{Number: "100500", Fund: "alpha"}
	src := stubRecords{
		records: map[string][]model.RawRecord{
			"100500": {
				balanceRec(1, "100500", model.CategoryClientDeposit, "16000"),
				balanceRec(2, "100500", model.CategoryProfitExtraction, "-300"),
			},
		},
		snapshots: map[string]*model.AccountSnapshot{
			"100500": {AccountNumber: "100500", Equity: decimal.RequireFromString("16128.62")},
		},
	}

	engine := NewEngine(stubAccounts{account}, src, &capturedPass{})
	engine.now = func() time.Time { return time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC) }

	first, err := engine.Reconcile(context.Background(), account)
	if err != nil {
		t.Fatalf("first Reconcile failed: %v", err)
	}
	second, err := engine.Reconcile(context.Background(), account)
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}

	if !first.TruePnL.Equal(second.TruePnL) ||
		!first.CumulativeDeposits.Equal(second.CumulativeDeposits) ||
		!first.ReturnPct.Equal(second.ReturnPct) {
		t.Fatalf("reconciliation not idempotent: %+v vs %+v", first, second)
	}
}

// liveStore plays the database: reads outside a view see whatever was
// committed last.
type liveStore struct {
	records []model.RawRecord
	equity  decimal.Decimal
}

// frozenView pins the store's state at open and commits a fresh $10k
// deposit cycle to the live store right after the record read, the
// worst possible moment for a torn pass.
type frozenView struct {
	store   *liveStore
	records []model.RawRecord
	equity  decimal.Decimal
}

func (v frozenView) ListByAccount(_ context.Context, n string) ([]model.RawRecord, error) {
	v.store.records = append(v.store.records,
		balanceRec(99, n, model.CategoryClientDeposit, "10000"))
	v.store.equity = v.store.equity.Add(decimal.NewFromInt(10000))
	return v.records, nil
}

func (v frozenView) LatestSnapshot(_ context.Context, n string) (*model.AccountSnapshot, error) {
	return &model.AccountSnapshot{AccountNumber: n, Equity: v.equity}, nil
}

type frozenSource struct {
	store *liveStore
}

func (s frozenSource) ReadConsistent(_ context.Context, fn func(repository.RecordView) error) error {
	return fn(frozenView{
		store:   s.store,
		records: append([]model.RawRecord(nil), s.store.records...),
		equity:  s.store.equity,
	})
}

func TestReconcileIgnoresCycleCommittedMidPass(t *testing.T) {
	account := model.Account{Number: "100504", Fund: "alpha"}
	store := &liveStore{
		records: []model.RawRecord{
			balanceRec(1, "100504", model.CategoryClientDeposit, "10000"),
		},
		equity: decimal.NewFromInt(10000),
	}

	engine := NewEngine(stubAccounts{account}, frozenSource{store: store}, &capturedPass{})
	state, err := engine.Reconcile(context.Background(), account)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	// Pairing the new equity with the old record list would report the
	// fresh deposit as pure profit.
	if !state.TruePnL.IsZero() {
		t.Fatalf("expected zero true P&L from a consistent view, got %s", state.TruePnL)
	}
	if !state.CurrentEquity.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("expected pre-cycle equity 10000, got %s", state.CurrentEquity)
	}
}

type countingSource struct {
	stubRecords
	views int
}

func (s *countingSource) ReadConsistent(ctx context.Context, fn func(repository.RecordView) error) error {
	s.views++
	return s.stubRecords.ReadConsistent(ctx, fn)
}

func TestRunPassOpensSingleView(t *testing.T) {
	accounts := stubAccounts{
		{Number: "100500", Fund: "alpha"},
		{Number: "100501", Fund: "alpha"},
		{Number: "100502", Fund: "alpha"},
	}
	src := &countingSource{stubRecords: stubRecords{}}

	engine := NewEngine(accounts, src, &capturedPass{})
	if _, err := engine.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	if src.views != 1 {
		t.Fatalf("expected the whole pass to read through one view, got %d", src.views)
	}
}

func TestRunPassPersistsAllAccounts(t *testing.T) {
	accounts := stubAccounts{
		{Number: "100500", Fund: "alpha"},
		{Number: "100501", Fund: "alpha"},
	}
	src := stubRecords{
		records: map[string][]model.RawRecord{
			"100500": {balanceRec(1, "100500", model.CategoryClientDeposit, "1000")},
		},
		snapshots: map[string]*model.AccountSnapshot{
			"100500": {AccountNumber: "100500", Equity: decimal.RequireFromString("1100")},
		},
	}
	sink := &capturedPass{}

	engine := NewEngine(accounts, src, sink)
	pass, err := engine.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	if sink.calls != 1 {
		t.Fatalf("expected exactly one SavePass call, got %d", sink.calls)
	}
	if len(sink.states) != 2 {
		t.Fatalf("expected states for both accounts, got %d", len(sink.states))
	}
	if pass.ID == "" {
		t.Fatal("expected a pass ID")
	}

	// The never-polled account reconciles to a zero-equity state rather
	// than being skipped.
	if !sink.states[1].CurrentEquity.IsZero() {
		t.Fatalf("expected zero equity for unpolled account, got %s", sink.states[1].CurrentEquity)
	}
}
