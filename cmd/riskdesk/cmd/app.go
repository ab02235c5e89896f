package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskdesk/config"
	"github.com/rustyeddy/riskdesk/journal"
	"github.com/rustyeddy/riskdesk/market"
	"github.com/rustyeddy/riskdesk/metrics"
	"github.com/rustyeddy/riskdesk/notify"
	"github.com/rustyeddy/riskdesk/risk"
	"github.com/rustyeddy/riskdesk/scheduler"
	"github.com/rustyeddy/riskdesk/strategy"
)

// app is the wired process: engine, quote store, dispatcher with its
// handlers, and both loops.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	engine  *risk.Engine
	store   *market.PriceStore
	metrics *metrics.Metrics
	disp    *notify.Dispatcher
	journal journal.Journal

	loop     *scheduler.Loop
	watchdog *scheduler.Watchdog
}

func newJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	case "csv":
		return journal.NewCSV(jc.TradesFile)
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown journal type %q", jc.Type)
}

// newApp builds the process from cfg. now is the engine clock; nil means
// time.Now.
func newApp(cfg *config.Config, log *zap.Logger, now func() time.Time) (*app, error) {
	if now == nil {
		now = time.Now
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	timing, err := cfg.Scheduler.Timing()
	if err != nil {
		return nil, err
	}
	minInterval, err := cfg.Notify.WebhookMinInterval()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		store:   market.NewPriceStore(),
		metrics: metrics.New(),
	}

	a.disp = notify.NewDispatcher(
		notify.WithLogger(log.Named("notify")),
		notify.WithQueueLimit(cfg.Notify.QueueLimit),
	)
	a.disp.Register("log", notify.LogHandler(log.Named("events")))
	a.disp.Register("metrics", a.metrics)

	if a.journal, err = newJournal(cfg.Journal); err != nil {
		return nil, fmt.Errorf("create journal: %w", err)
	}
	if a.journal != nil {
		a.disp.Register("journal", notify.JournalHandler(a.journal))
	}
	if cfg.Notify.WebhookURL != "" {
		a.disp.RegisterBestEffort("webhook", notify.NewWebhook(cfg.Notify.WebhookURL, minInterval, cfg.Notify.MaxPerHour))
	}

	a.engine, err = risk.NewEngine(policy,
		risk.WithClock(now),
		risk.WithLogger(log.Named("risk")),
		risk.WithEventSink(a.disp),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	signals, err := strategy.NewEMACross(cfg.Strategy.EMACross())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.loop = &scheduler.Loop{
		Engine:       a.engine,
		Quotes:       a.store,
		Signals:      signals,
		Symbols:      cfg.Scheduler.Symbols,
		Interval:     timing.Interval,
		ErrorBackoff: timing.ErrorBackoff,
		StatusEvery:  cfg.Scheduler.StatusEvery,
		Metrics:      a.metrics,
		Log:          log.Named("loop"),
	}
	a.watchdog = &scheduler.Watchdog{
		Engine:     a.engine,
		Quotes:     a.store,
		Interval:   timing.WatchdogInterval,
		Contexts:   a.loop.LastContexts,
		StaleAfter: timing.StaleAfter,
		Metrics:    a.metrics,
		Log:        log.Named("watchdog"),
		Now:        now,
	}
	return a, nil
}

// recover restores positions the journal still lists as open. Replays
// skip it so recorded sessions start flat.
func (a *app) recover() error {
	r, ok := a.journal.(journal.Recoverer)
	if !ok {
		return nil
	}
	recs, err := r.ListOpen()
	if err != nil {
		return fmt.Errorf("recover open trades: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	positions := make([]risk.Position, 0, len(recs))
	for _, rec := range recs {
		positions = append(positions, notify.FromTradeRecord(rec))
	}
	n := a.engine.Restore(positions)
	a.log.Info("recovered open positions", zap.Int("restored", n), zap.Int("journaled", len(recs)))
	return nil
}

// tick runs one strategy step and one watchdog check against the stored
// quotes, then delivers the resulting events.
func (a *app) tick(ctx context.Context) error {
	if _, err := a.loop.Step(ctx); err != nil && !errors.Is(err, scheduler.ErrNoPrices) {
		return err
	}
	a.watchdog.Check(ctx)
	a.disp.Flush(ctx)
	return nil
}

// Close delivers pending events and closes the journal.
func (a *app) Close() error {
	a.disp.Flush(context.Background())
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}
