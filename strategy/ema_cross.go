// Package strategy holds reference signal providers.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rustyeddy/riskdesk/indicators"
	"github.com/rustyeddy/riskdesk/market"
)

type EMACrossConfig struct {
	FastPeriod int
	SlowPeriod int
	ATRPeriod  int

	// Optional noise filter in price units. 0 disables.
	MinSpread float64
}

func (c EMACrossConfig) Validate() error {
	if c.FastPeriod <= 0 || c.SlowPeriod <= 0 || c.ATRPeriod <= 0 {
		return errors.New("ema cross: periods must be > 0")
	}
	if c.FastPeriod >= c.SlowPeriod {
		return errors.New("ema cross: fast period must be < slow period")
	}
	if c.MinSpread < 0 {
		return errors.New("ema cross: min spread must be >= 0")
	}
	return nil
}

// EMACross emits an entry when a fast EMA crosses a slow EMA. Signals fire
// on the cross itself, not on every sample while the EMAs stay crossed. It
// keeps independent state per symbol and is safe for concurrent use.
type EMACross struct {
	cfg  EMACrossConfig
	name string

	mu      sync.Mutex
	symbols map[string]*crossState
}

type crossState struct {
	fast *indicators.EMA
	slow *indicators.EMA
	atr  *indicators.ATR

	// -1 fast below slow, 0 unknown, +1 fast above slow
	prevRel int
	last    market.Signal
}

func NewEMACross(cfg EMACrossConfig) (*EMACross, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EMACross{
		cfg:     cfg,
		name:    fmt.Sprintf("EMA_CROSS(%d,%d)", cfg.FastPeriod, cfg.SlowPeriod),
		symbols: make(map[string]*crossState),
	}, nil
}

func (x *EMACross) Name() string { return x.name }

func (x *EMACross) state(symbol string) *crossState {
	st, ok := x.symbols[symbol]
	if !ok {
		st = &crossState{
			fast: indicators.NewEMA(x.cfg.FastPeriod),
			slow: indicators.NewEMA(x.cfg.SlowPeriod),
			atr:  indicators.NewATR(x.cfg.ATRPeriod),
			last: market.Signal{Action: market.Hold, Reason: "warming up"},
		}
		x.symbols[symbol] = st
	}
	return st
}

// Reset clears every symbol's state.
func (x *EMACross) Reset() {
	x.mu.Lock()
	x.symbols = make(map[string]*crossState)
	x.mu.Unlock()
}

// Ready reports whether both EMAs and the ATR are warmed up for symbol.
func (x *EMACross) Ready(symbol string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	st, ok := x.symbols[symbol]
	return ok && st.ready()
}

func (st *crossState) ready() bool {
	return st.fast.Ready() && st.slow.Ready() && st.atr.Ready()
}

// Observe feeds the next price for symbol and returns the resulting signal.
func (x *EMACross) Observe(symbol string, price float64) market.Signal {
	x.mu.Lock()
	defer x.mu.Unlock()

	st := x.state(symbol)
	st.fast.Update(price)
	st.slow.Update(price)
	st.atr.Update(price)
	st.last = x.decide(st)
	return st.last
}

// Evaluate returns the signal produced by the latest Observe for symbol.
func (x *EMACross) Evaluate(ctx context.Context, symbol string) (market.Signal, error) {
	if err := ctx.Err(); err != nil {
		return market.Signal{}, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	st, ok := x.symbols[symbol]
	if !ok {
		return market.Signal{Action: market.Hold, Reason: "no data"}, nil
	}
	return st.last, nil
}

func (x *EMACross) decide(st *crossState) market.Signal {
	if !st.ready() {
		return market.Signal{Action: market.Hold, Reason: "warming up"}
	}

	fv := st.fast.Value()
	sv := st.slow.Value()
	diff := fv - sv
	vol := st.atr.Value()

	sig := market.Signal{
		Action:     market.Hold,
		Volatility: vol,
		TrendBias:  bias(diff, vol),
		Confidence: confidence(diff, vol),
	}

	if x.cfg.MinSpread > 0 && math.Abs(diff) < x.cfg.MinSpread {
		sig.Reason = "min-spread filter"
		return sig
	}

	rel := 0
	if diff > 0 {
		rel = +1
	} else if diff < 0 {
		rel = -1
	}

	switch {
	case rel == 0:
		sig.Reason = "no spread"
	case st.prevRel == 0:
		sig.Reason = "baseline set"
	case st.prevRel == -1 && rel == +1:
		sig.Action = market.EnterLong
		sig.Reason = "fast EMA crossed above slow EMA"
	case st.prevRel == +1 && rel == -1:
		sig.Action = market.EnterShort
		sig.Reason = "fast EMA crossed below slow EMA"
	default:
		sig.Reason = "no cross"
	}
	if rel != 0 {
		st.prevRel = rel
	}
	return sig
}

// bias is the EMA spread in ATR units, clamped to [-1, 1].
func bias(diff, vol float64) float64 {
	if vol <= 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, diff/vol))
}

// confidence grows from 0.5 toward 1 as the spread widens relative to ATR.
func confidence(diff, vol float64) float64 {
	if vol <= 0 {
		return 0.5
	}
	return 0.5 + 0.5*math.Min(1, math.Abs(diff)/vol)
}
