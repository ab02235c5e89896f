package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskdesk/market"
)

var _ market.SignalProvider = (*EMACross)(nil)

func newCross(t *testing.T, minSpread float64) *EMACross {
	t.Helper()
	x, err := NewEMACross(EMACrossConfig{FastPeriod: 3, SlowPeriod: 5, ATRPeriod: 3, MinSpread: minSpread})
	require.NoError(t, err)
	return x
}

func feed(x *EMACross, symbol string, prices []float64) []market.Signal {
	var out []market.Signal
	for _, p := range prices {
		if s := x.Observe(symbol, p); s.Action != market.Hold {
			out = append(out, s)
		}
	}
	return out
}

func flat(n int, p float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func trend(from, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		from += step
		out[i] = from
	}
	return out
}

func TestEMACrossConfigValidate(t *testing.T) {
	t.Parallel()

	bad := []EMACrossConfig{
		{FastPeriod: 0, SlowPeriod: 5, ATRPeriod: 3},
		{FastPeriod: 5, SlowPeriod: 5, ATRPeriod: 3},
		{FastPeriod: 3, SlowPeriod: 5, ATRPeriod: 0},
		{FastPeriod: 3, SlowPeriod: 5, ATRPeriod: 3, MinSpread: -1},
	}
	for _, cfg := range bad {
		_, err := NewEMACross(cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

func TestEMACrossWarmupNoSignals(t *testing.T) {
	t.Parallel()

	x := newCross(t, 0)
	assert.Empty(t, feed(x, "BTC", []float64{100, 101, 102, 103}))
	assert.False(t, x.Ready("BTC"))

	sig, err := x.Evaluate(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, market.Hold, sig.Action)
	assert.Equal(t, "warming up", sig.Reason)
}

func TestEMACrossBaselineThenCrossUpThenDown(t *testing.T) {
	t.Parallel()

	x := newCross(t, 0)
	prices := flat(20, 100)
	prices = append(prices, trend(100, -0.5, 10)...)
	prices = append(prices, trend(95, 1, 15)...)
	prices = append(prices, trend(110, -1, 20)...)

	sigs := feed(x, "BTC", prices)
	require.GreaterOrEqual(t, len(sigs), 2)
	assert.Equal(t, market.EnterLong, sigs[0].Action)
	assert.Equal(t, market.EnterShort, sigs[1].Action)

	for _, s := range sigs {
		assert.Greater(t, s.Volatility, 0.0)
		assert.GreaterOrEqual(t, s.Confidence, 0.5)
		assert.LessOrEqual(t, s.Confidence, 1.0)
		assert.GreaterOrEqual(t, s.TrendBias, -1.0)
		assert.LessOrEqual(t, s.TrendBias, 1.0)
	}
}

func TestEMACrossMinSpreadFiltersNoise(t *testing.T) {
	t.Parallel()

	x := newCross(t, 10)
	prices := flat(20, 100)
	prices = append(prices, 100.2, 100.1, 100.3, 100.2, 100.4, 100.3, 100.2, 100.1, 100, 99.9, 100, 100.1)
	assert.Empty(t, feed(x, "BTC", prices))
}

func TestEMACrossSymbolsAreIndependent(t *testing.T) {
	t.Parallel()

	x := newCross(t, 0)
	feed(x, "BTC", flat(20, 100))
	assert.True(t, x.Ready("BTC"))
	assert.False(t, x.Ready("ETH"))

	sig, err := x.Evaluate(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, "no data", sig.Reason)
}

func TestEMACrossResetReplaysSameSignals(t *testing.T) {
	t.Parallel()

	x := newCross(t, 0)
	prices := flat(20, 100)
	prices = append(prices, trend(100, -0.5, 8)...)
	prices = append(prices, trend(96, 1, 12)...)
	prices = append(prices, trend(108, -1, 16)...)

	first := feed(x, "BTC", prices)
	require.NotEmpty(t, first)

	x.Reset()
	assert.Equal(t, first, feed(x, "BTC", prices))
}

func TestEMACrossEvaluateCancelled(t *testing.T) {
	t.Parallel()

	x := newCross(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := x.Evaluate(ctx, "BTC")
	assert.ErrorIs(t, err, context.Canceled)
}
