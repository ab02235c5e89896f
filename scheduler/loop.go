// Package scheduler drives the engine from quotes and signals on a fixed
// cadence.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskdesk/market"
	"github.com/rustyeddy/riskdesk/metrics"
	"github.com/rustyeddy/riskdesk/risk"
)

// PriceObserver is implemented by providers that build their signal from
// the polled price stream, such as strategy.EMACross.
type PriceObserver interface {
	Observe(symbol string, price float64) market.Signal
}

// Close reasons used when the strategy, not the engine, ends a position.
const (
	ReasonSignalExit     = "signal exit"
	ReasonSignalReversal = "signal reversal"
)

// Loop is the strategy loop: poll quotes, evaluate signals, manage open
// positions, then act on entries and exits.
type Loop struct {
	Engine  *risk.Engine
	Quotes  market.QuoteSupplier
	Signals market.SignalProvider
	Symbols []string

	Interval time.Duration
	// ErrorBackoff is slept after a failed iteration. 0 disables.
	ErrorBackoff time.Duration
	// StatusEvery logs a portfolio summary every N iterations. 0 disables.
	StatusEvery int

	Metrics *metrics.Metrics
	Log     *zap.Logger

	mu   sync.Mutex
	iter int
	last map[string]risk.MarketContext
}

// StepResult reports what one iteration did.
type StepResult struct {
	Prices   map[string]float64
	Opened   []risk.Position
	Closed   []risk.Position
	Rejected map[string]string
}

// ErrNoPrices is returned by Step when no symbol could be priced.
var ErrNoPrices = errors.New("scheduler: no prices")

func (l *Loop) logger() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}

// watchlist is the configured symbols plus anything still open.
func (l *Loop) watchlist() []string {
	seen := make(map[string]bool, len(l.Symbols))
	var out []string
	for _, s := range l.Symbols {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, p := range l.Engine.OpenPositions() {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Step runs one iteration.
func (l *Loop) Step(ctx context.Context) (StepResult, error) {
	log := l.logger()
	l.mu.Lock()
	l.iter++
	iter := l.iter
	l.mu.Unlock()
	if l.Metrics != nil {
		l.Metrics.LoopTick("strategy")
	}

	res := StepResult{Rejected: make(map[string]string)}
	symbols := l.watchlist()
	prices, errs := market.Prices(ctx, l.Quotes, symbols)
	for sym, err := range errs {
		log.Warn("quote failed", zap.String("symbol", sym), zap.Error(err))
		if l.Metrics != nil {
			l.Metrics.QuoteError(sym)
		}
	}
	res.Prices = prices
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if len(prices) == 0 && len(symbols) > 0 {
		return res, ErrNoPrices
	}

	signals := make(map[string]market.Signal, len(prices))
	ctxs := make(map[string]risk.MarketContext, len(prices))
	obs, observes := l.Signals.(PriceObserver)
	for _, sym := range symbols {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		if observes {
			obs.Observe(sym, price)
		}
		sig, err := l.Signals.Evaluate(ctx, sym)
		if err != nil {
			log.Warn("signal failed", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		signals[sym] = sig
		ctxs[sym] = risk.MarketContext{Volatility: sig.Volatility, TrendBias: sig.TrendBias}
	}
	l.mu.Lock()
	l.last = ctxs
	l.mu.Unlock()

	res.Closed = l.Engine.UpdateAll(prices, ctxs)

	for _, sym := range symbols {
		sig, ok := signals[sym]
		if !ok {
			continue
		}
		price := prices[sym]
		if p, closed := l.exit(sym, price, sig); closed {
			res.Closed = append(res.Closed, p)
			continue
		}
		if !sig.Action.IsEntry() {
			continue
		}
		p, reason := l.enter(sym, price, sig)
		if reason != "" {
			res.Rejected[sym] = reason
			continue
		}
		if p.ID != "" {
			res.Opened = append(res.Opened, p)
		}
	}

	if l.StatusEvery > 0 && iter%l.StatusEvery == 0 {
		l.status(prices, iter)
	}
	return res, nil
}

// exit closes an open position on an exit signal or an entry the other way.
func (l *Loop) exit(sym string, price float64, sig market.Signal) (risk.Position, bool) {
	pos, ok := l.Engine.Position(sym)
	if !ok {
		return risk.Position{}, false
	}
	reason := ""
	switch {
	case sig.Action == market.Exit:
		reason = ReasonSignalExit
	case sig.Action == market.EnterLong && pos.Side == risk.Short,
		sig.Action == market.EnterShort && pos.Side == risk.Long:
		reason = ReasonSignalReversal
	default:
		return risk.Position{}, false
	}
	return l.Engine.Close(sym, price, reason)
}

// enter sizes and opens a position for an entry signal. A non-empty
// reason means the engine refused it.
func (l *Loop) enter(sym string, price float64, sig market.Signal) (risk.Position, string) {
	log := l.logger()
	if _, open := l.Engine.Position(sym); open {
		return risk.Position{}, ""
	}

	pol := l.Engine.Policy()
	if sig.Confidence < pol.MinConfidence {
		log.Debug("signal below confidence floor",
			zap.String("symbol", sym),
			zap.Float64("confidence", sig.Confidence),
			zap.Float64("min", pol.MinConfidence),
		)
		return risk.Position{}, ""
	}

	mc := risk.MarketContext{Volatility: sig.Volatility, TrendBias: sig.TrendBias}
	if ok, reason := l.Engine.CanOpen(sym, &mc, 0, price); !ok {
		l.rejected(sym, reason)
		return risk.Position{}, reason
	}

	side := risk.Long
	if sig.Action == market.EnterShort {
		side = risk.Short
	}
	equity := l.Engine.Equity()
	stop := risk.StopFor(pol, side, price, sig.Volatility)
	target := risk.TargetFor(pol, side, price, stop)
	qty := risk.PositionSize(pol, equity, price, stop)
	if qty <= 0 {
		log.Warn("entry sized to zero", zap.String("symbol", sym), zap.Float64("equity", equity))
		return risk.Position{}, ""
	}

	pos, err := l.Engine.Open(risk.OpenRequest{
		Symbol:     sym,
		Side:       side,
		EntryPrice: price,
		Quantity:   qty,
		StopLoss:   stop,
		TakeProfit: target,
		Meta: risk.Meta{
			Volatility: sig.Volatility,
			Confidence: sig.Confidence,
		},
	})
	var rej *risk.Rejection
	switch {
	case errors.As(err, &rej):
		l.rejected(sym, rej.Reason)
		return risk.Position{}, rej.Reason
	case err != nil:
		log.Error("open failed", zap.String("symbol", sym), zap.Error(err))
		return risk.Position{}, ""
	}
	log.Info("entered on signal",
		zap.String("symbol", sym),
		zap.String("side", string(side)),
		zap.Float64("confidence", sig.Confidence),
		zap.String("why", sig.Reason),
	)
	return pos, ""
}

func (l *Loop) rejected(sym, reason string) {
	l.logger().Info("entry refused", zap.String("symbol", sym), zap.String("reason", reason))
	if l.Metrics != nil {
		l.Metrics.ObserveRejection(reason)
	}
}

func (l *Loop) status(prices map[string]float64, iter int) {
	s := l.Engine.Summary(prices)
	l.logger().Info("portfolio",
		zap.Int("iteration", iter),
		zap.Int("open", s.OpenPositions),
		zap.Int("daily_trades", s.DailyTrades),
		zap.Float64("realized", s.DailyRealizedPnL),
		zap.Float64("unrealized", s.UnrealizedPnL),
		zap.Float64("total", s.TotalPnL),
	)
	if l.Metrics != nil {
		l.Metrics.ObserveSummary(s)
	}
}

// Iterations is the number of Step calls so far. It may be called from
// other goroutines.
func (l *Loop) Iterations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.iter
}

// LastContexts returns the market contexts built by the latest Step. It
// may be called from other goroutines.
func (l *Loop) LastContexts() map[string]risk.MarketContext {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]risk.MarketContext, len(l.last))
	for k, v := range l.last {
		out[k] = v
	}
	return out
}

// Run steps once immediately and then every Interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	if l.Interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	t := time.NewTicker(l.Interval)
	defer t.Stop()

	for {
		if _, err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger().Warn("iteration failed", zap.Int("iteration", l.Iterations()), zap.Error(err))
			if l.ErrorBackoff > 0 && !sleep(ctx, l.ErrorBackoff) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
