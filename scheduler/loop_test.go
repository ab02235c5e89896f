package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rustyeddy/riskdesk/market"
	"github.com/rustyeddy/riskdesk/metrics"
	"github.com/rustyeddy/riskdesk/risk"
	"github.com/rustyeddy/riskdesk/strategy"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// scripted returns whatever signal was last set for a symbol.
type scripted struct {
	mu   sync.Mutex
	sigs map[string]market.Signal
}

func (s *scripted) set(symbol string, sig market.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sigs == nil {
		s.sigs = make(map[string]market.Signal)
	}
	s.sigs[symbol] = sig
}

func (s *scripted) Evaluate(_ context.Context, symbol string) (market.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.sigs[symbol]
	if !ok {
		return market.Signal{}, errors.New("no signal")
	}
	return sig, nil
}

func testPolicy() risk.Policy {
	p := risk.DefaultPolicy()
	p.Cooldown = 0
	p.RoundTripCostPct = 0
	return p
}

type fixture struct {
	engine  *risk.Engine
	clock   *clock
	prices  *market.PriceStore
	signals *scripted
	metrics *metrics.Metrics
	loop    *Loop
}

func newFixture(t *testing.T, p risk.Policy, symbols ...string) *fixture {
	t.Helper()
	c := &clock{t: t0}
	e, err := risk.NewEngine(p, risk.WithClock(c.Now), risk.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	f := &fixture{
		engine:  e,
		clock:   c,
		prices:  market.NewPriceStore(),
		signals: &scripted{},
		metrics: metrics.New(),
	}
	f.loop = &Loop{
		Engine:  e,
		Quotes:  f.prices,
		Signals: f.signals,
		Symbols: symbols,
		Metrics: f.metrics,
		Log:     zaptest.NewLogger(t),
	}
	return f
}

func (f *fixture) quote(t *testing.T, symbol string, price float64) {
	t.Helper()
	require.NoError(t, f.prices.Set(market.Quote{Symbol: symbol, Price: price, Time: f.clock.Now()}))
}

func TestStepOpensSizedPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testPolicy(), "BTC")
	f.quote(t, "BTC", 100)
	f.signals.set("BTC", market.Signal{Action: market.EnterLong, Confidence: 0.8})

	res, err := f.loop.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)

	p := res.Opened[0]
	assert.Equal(t, risk.Long, p.Side)
	assert.InDelta(t, 98, p.StopLoss, 1e-9)
	assert.InDelta(t, 104, p.TakeProfit, 1e-9)
	// 10% of 10000 notional caps the 2%-risk size of 100.
	assert.InDelta(t, 10, p.Quantity, 1e-9)
	assert.InDelta(t, 0.8, p.Confidence, 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoopIterations.WithLabelValues("strategy")))
}

func TestStepUsesVolatilityForStops(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testPolicy(), "ETH")
	f.quote(t, "ETH", 200)
	f.signals.set("ETH", market.Signal{Action: market.EnterShort, Confidence: 0.9, Volatility: 3, TrendBias: -0.5})

	res, err := f.loop.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)

	p := res.Opened[0]
	assert.Equal(t, risk.Short, p.Side)
	assert.InDelta(t, 206, p.StopLoss, 1e-9)
	assert.InDelta(t, 188, p.TakeProfit, 1e-9)
	assert.Equal(t, risk.MarketContext{Volatility: 3, TrendBias: -0.5}, f.loop.LastContexts()["ETH"])
}

func TestStepSkipsLowConfidence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testPolicy(), "BTC")
	f.quote(t, "BTC", 100)
	f.signals.set("BTC", market.Signal{Action: market.EnterLong, Confidence: 0.4})

	res, err := f.loop.Step(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Opened)
	assert.Empty(t, res.Rejected)
	assert.Empty(t, f.engine.OpenPositions())
}

func TestStepRecordsRejections(t *testing.T) {
	t.Parallel()

	p := testPolicy()
	p.MaxOpenPositions = 1
	f := newFixture(t, p, "AAA", "BBB")
	for _, s := range []string{"AAA", "BBB"} {
		f.quote(t, s, 50)
		f.signals.set(s, market.Signal{Action: market.EnterLong, Confidence: 1})
	}

	res, err := f.loop.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)
	assert.Equal(t, "AAA", res.Opened[0].Symbol)
	assert.Equal(t, map[string]string{"BBB": risk.RejectMaxOpen}, res.Rejected)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Rejections.WithLabelValues(risk.RejectMaxOpen)))
}

func TestStepExitAndReversal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testPolicy(), "AAA", "BBB")
	for _, s := range []string{"AAA", "BBB"} {
		f.quote(t, s, 100)
		f.signals.set(s, market.Signal{Action: market.EnterLong, Confidence: 1})
	}
	_, err := f.loop.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, f.engine.OpenPositions(), 2)

	f.clock.Advance(time.Minute)
	f.quote(t, "AAA", 101)
	f.quote(t, "BBB", 101)
	f.signals.set("AAA", market.Signal{Action: market.Exit})
	f.signals.set("BBB", market.Signal{Action: market.EnterShort, Confidence: 1})

	res, err := f.loop.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Closed, 2)
	assert.Equal(t, ReasonSignalExit, res.Closed[0].CloseReason)
	assert.Equal(t, ReasonSignalReversal, res.Closed[1].CloseReason)
	// The reversal does not re-enter on the same tick.
	assert.Empty(t, res.Opened)
	assert.Empty(t, f.engine.OpenPositions())
}

func TestStepManagesOpenPositions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testPolicy(), "BTC")
	f.quote(t, "BTC", 100)
	f.signals.set("BTC", market.Signal{Action: market.EnterLong, Confidence: 1})
	_, err := f.loop.Step(context.Background())
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	f.quote(t, "BTC", 97)
	f.signals.set("BTC", market.Signal{Action: market.Hold})

	res, err := f.loop.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Closed, 1)
	assert.Equal(t, risk.ReasonStopLoss, res.Closed[0].CloseReason)
	assert.InDelta(t, 98, res.Closed[0].ExitPrice, 1e-9)
}

func TestStepQuoteErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testPolicy(), "BTC", "GONE")
	f.quote(t, "BTC", 100)
	f.signals.set("BTC", market.Signal{Action: market.Hold})

	res, err := f.loop.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTC": 100}, res.Prices)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.QuoteErrors.WithLabelValues("GONE")))

	empty := newFixture(t, testPolicy(), "GONE")
	_, err = empty.loop.Step(context.Background())
	assert.ErrorIs(t, err, ErrNoPrices)
}

func TestStepStatusSummary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testPolicy(), "BTC")
	f.loop.StatusEvery = 2
	f.quote(t, "BTC", 100)
	f.signals.set("BTC", market.Signal{Action: market.EnterLong, Confidence: 1})

	_, err := f.loop.Step(context.Background())
	require.NoError(t, err)
	assert.Zero(t, testutil.ToFloat64(f.metrics.OpenPositions))

	_, err = f.loop.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OpenPositions))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DailyTrades))
	assert.Equal(t, 2, f.loop.Iterations())
}

func TestStepWithEMACross(t *testing.T) {
	t.Parallel()

	p := testPolicy()
	p.MinConfidence = 0.5
	f := newFixture(t, p, "SOL")
	x, err := strategy.NewEMACross(strategy.EMACrossConfig{FastPeriod: 2, SlowPeriod: 4, ATRPeriod: 3})
	require.NoError(t, err)
	f.loop.Signals = x

	series := []float64{100, 99, 98, 97, 96, 95, 94, 93, 96, 100, 104, 108}
	var opened []risk.Position
	for _, price := range series {
		f.clock.Advance(time.Minute)
		f.quote(t, "SOL", price)
		res, err := f.loop.Step(context.Background())
		require.NoError(t, err)
		opened = append(opened, res.Opened...)
	}

	require.Len(t, opened, 1)
	assert.Equal(t, risk.Long, opened[0].Side)
	assert.Greater(t, opened[0].Volatility, 0.0)
	assert.Greater(t, f.loop.LastContexts()["SOL"].Volatility, 0.0)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testPolicy(), "BTC")
	f.quote(t, "BTC", 100)
	f.signals.set("BTC", market.Signal{Action: market.Hold})
	f.loop.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	// Iterations is read here while Run is still stepping.
	require.Eventually(t, func() bool { return f.loop.Iterations() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, float64(f.loop.Iterations()), testutil.ToFloat64(f.metrics.LoopIterations.WithLabelValues("strategy")))
}

func TestRunRejectsZeroInterval(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testPolicy(), "BTC")
	assert.Error(t, f.loop.Run(context.Background()))
}
