package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"fundledger/src/classifier"
	"fundledger/src/connectors"
	"fundledger/src/model"
	"fundledger/src/registry"
)

// ErrEmptySummary marks a terminal that answered with no accounts at
// all; that is a malformed cycle, not a valid empty one.
var ErrEmptySummary = errors.New("terminal returned empty account summary")

// Source is one authenticated terminal session.
type Source interface {
	Summary(ctx context.Context) ([]connectors.AccountSummary, error)
	History(ctx context.Context, accountID string, since time.Time) ([]connectors.HistoryRecord, error)
}

// SourceFactory opens a session for a terminal group. Called once per
// cycle so a restarted terminal gets a fresh login.
type SourceFactory func(group registry.TerminalGroup) (Source, error)

// Ingestor persists one completed poll cycle atomically.
type Ingestor interface {
	IngestCycle(ctx context.Context, snapshots []model.AccountSnapshot, records []model.RawRecord) (int, int, error)
}

// HealthSink receives the outcome of every cycle for one group.
type HealthSink interface {
	ObserveSuccess(ctx context.Context)
	ObserveFailure(ctx context.Context, err error)
}

// Poller runs one worker per terminal group. Within a group the single
// session is used sequentially for the whole cycle and released before
// the next tick; across groups cycles run fully in parallel. A cycle is
// all-or-nothing per group: nothing is written unless every fetch in
// the cycle succeeded.
type Poller struct {
	cfg      Config
	reg      *registry.Registry
	sources  SourceFactory
	ingestor Ingestor
	monitors func(group string) HealthSink
	classify func(*model.RawRecord) model.Category
	now      func() time.Time
}

// NewPoller wires a poller over the registry. The default source
// factory opens a signed terminal client with the group's decrypted
// credentials; records are classified eagerly before ingestion.
func NewPoller(cfg Config, reg *registry.Registry, ingestor Ingestor, monitors func(group string) HealthSink) *Poller {
	return &Poller{
		cfg:      cfg,
		reg:      reg,
		ingestor: ingestor,
		monitors: monitors,
		sources: func(group registry.TerminalGroup) (Source, error) {
			apiKey, apiSecret, err := reg.Credentials(group.Terminal)
			if err != nil {
				return nil, err
			}
			return connectors.NewTerminalClient(apiKey, apiSecret, group.Terminal.Endpoint), nil
		},
		classify: func(rec *model.RawRecord) model.Category {
			return classifier.Classify(rec, reg)
		},
		now: time.Now,
	}
}

// WithSourceFactory overrides session creation. Useful for tests.
func (p *Poller) WithSourceFactory(factory SourceFactory) *Poller {
	p.sources = factory
	return p
}

// worker owns the cycle state for one terminal group. The mutex is the
// single-flight guard: an overlapping tick is skipped, never queued.
type worker struct {
	group       registry.TerminalGroup
	mu          sync.Mutex
	lastSuccess time.Time
}

// Run starts every group worker and blocks until the context is done
// and all in-flight cycles have finished or hit their timeout.
func (p *Poller) Run(ctx context.Context) {
	groups := p.reg.AccountsByTerminal()

	var wg sync.WaitGroup
	for i := range groups {
		w := &worker{group: groups[i]}
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runWorker(ctx, w)
		}()
	}

	logger.WithFields(map[string]interface{}{
		"component": "Poller",
		"groups":    len(groups),
		"interval":  p.cfg.PollInterval,
	}).Info("Poll workers started")

	wg.Wait()
}

func (p *Poller) runWorker(ctx context.Context, w *worker) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.pollGroup(ctx, w)

	for {
		select {
		case <-ctx.Done():
			logger.WithFields(map[string]interface{}{
				"component": "Poller",
				"group":     w.group.Key,
			}).Info("Poll worker stopped")
			return
		case <-ticker.C:
			p.pollGroup(ctx, w)
		}
	}
}

// pollGroup executes one cycle for one group.
func (p *Poller) pollGroup(ctx context.Context, w *worker) {
	if !w.mu.TryLock() {
		logger.WithFields(map[string]interface{}{
			"component": "Poller",
			"group":     w.group.Key,
		}).Warn("Previous cycle still running, skipping tick")
		return
	}
	defer w.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, p.cfg.CycleTimeout)
	defer cancel()

	monitor := p.monitors(w.group.Key)

	snapshots, records, err := p.pollOnce(cctx, w)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"component": "Poller",
			"group":     w.group.Key,
		}).WithError(err).Error("Poll cycle failed, nothing written")
		monitor.ObserveFailure(ctx, err)
		return
	}

	inserted, updated, err := p.ingestor.IngestCycle(cctx, snapshots, records)
	if err != nil {
		monitor.ObserveFailure(ctx, err)
		return
	}

	monitor.ObserveSuccess(ctx)
	w.lastSuccess = p.now()

	logger.WithFields(map[string]interface{}{
		"component": "Poller",
		"group":     w.group.Key,
		"inserted":  inserted,
		"updated":   updated,
	}).Info("Poll cycle completed")
}

// pollOnce holds the group session for one full fetch: the summary,
// then per-account history, sequentially on the shared session.
func (p *Poller) pollOnce(ctx context.Context, w *worker) ([]model.AccountSnapshot, []model.RawRecord, error) {
	source, err := p.sources(w.group)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session for group %s: %w", w.group.Key, err)
	}

	summaries, err := source.Summary(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(summaries) == 0 {
		return nil, nil, ErrEmptySummary
	}

	byAccount := make(map[string]connectors.AccountSummary, len(summaries))
	for _, s := range summaries {
		byAccount[s.AccountID] = s
	}

	since := p.since(w)

	var snapshots []model.AccountSnapshot
	var records []model.RawRecord

	for _, account := range w.group.Accounts {
		summary, ok := byAccount[account.Number]
		if !ok {
			return nil, nil, fmt.Errorf("terminal summary is missing account %s", account.Number)
		}
		snapshots = append(snapshots, model.AccountSnapshot{
			AccountNumber: account.Number,
			Equity:        summary.Equity,
			Balance:       summary.Balance,
			OpenPositions: summary.OpenPositions,
		})

		history, err := source.History(ctx, account.Number, since)
		if err != nil {
			return nil, nil, err
		}

		for _, h := range history {
			rec := model.RawRecord{
				Ticket:        h.Ticket,
				AccountNumber: account.Number,
				RecordTime:    h.Time,
				TypeCode:      h.TypeCode,
				Volume:        h.Volume,
				Price:         h.Price,
				Delta:         h.Delta,
				Annotation:    h.Annotation,
			}
			rec.Category = p.classify(&rec)
			rec.ClassifierVersion = classifier.Version
			records = append(records, rec)
		}
	}

	return snapshots, records, nil
}

// since picks the history cursor: a wide window on the first cycle, a
// short overlap afterwards. Overlaps are safe because ingestion dedups
// on the natural key.
func (p *Poller) since(w *worker) time.Time {
	if w.lastSuccess.IsZero() {
		return p.now().Add(-p.cfg.InitialLookback)
	}
	return w.lastSuccess.Add(-p.cfg.OverlapLookback)
}
