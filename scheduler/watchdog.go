package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskdesk/market"
	"github.com/rustyeddy/riskdesk/metrics"
	"github.com/rustyeddy/riskdesk/risk"
)

// Watchdog re-checks open positions on its own cadence, independent of the
// strategy loop. Stops, targets and time stops fire here even when the
// strategy interval is long or a signal provider stalls.
type Watchdog struct {
	Engine   *risk.Engine
	Quotes   market.QuoteSupplier
	Interval time.Duration

	// Contexts supplies the latest volatility per symbol, typically
	// Loop.LastContexts. Optional.
	Contexts func() map[string]risk.MarketContext

	// StaleAfter warns about positions held longer than this. 0 disables.
	StaleAfter time.Duration

	Metrics *metrics.Metrics
	Log     *zap.Logger
	// Now defaults to time.Now. Use the engine's clock in replays.
	Now func() time.Time
}

func (w *Watchdog) logger() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

func (w *Watchdog) clock() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

// Check prices every open position and lets the engine close what must
// exit. It returns the positions closed.
func (w *Watchdog) Check(ctx context.Context) []risk.Position {
	log := w.logger()
	if w.Metrics != nil {
		w.Metrics.LoopTick("watchdog")
	}

	open := w.Engine.OpenPositions()
	if len(open) == 0 {
		return nil
	}
	symbols := make([]string, len(open))
	for i, p := range open {
		symbols[i] = p.Symbol
	}

	prices, errs := market.Prices(ctx, w.Quotes, symbols)
	for sym, err := range errs {
		log.Warn("watchdog quote failed", zap.String("symbol", sym), zap.Error(err))
		if w.Metrics != nil {
			w.Metrics.QuoteError(sym)
		}
	}

	var ctxs map[string]risk.MarketContext
	if w.Contexts != nil {
		ctxs = w.Contexts()
	}
	closed := w.Engine.UpdateAll(prices, ctxs)

	if w.StaleAfter > 0 {
		now := w.clock()
		gone := make(map[string]bool, len(closed))
		for _, p := range closed {
			gone[p.Symbol] = true
		}
		for _, p := range open {
			if gone[p.Symbol] {
				continue
			}
			if age := now.Sub(p.EntryTime); age > w.StaleAfter {
				log.Warn("stagnant position",
					zap.String("symbol", p.Symbol),
					zap.String("id", p.ID),
					zap.Duration("age", age.Round(time.Minute)),
					zap.Float64("pnl_pct", p.PnLPercent),
				)
			}
		}
	}
	return closed
}

// Run calls Check every Interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) error {
	if w.Interval <= 0 {
		return errors.New("watchdog: interval must be positive")
	}
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if closed := w.Check(ctx); len(closed) > 0 {
				w.logger().Info("watchdog closed positions", zap.Int("count", len(closed)))
			}
		}
	}
}
