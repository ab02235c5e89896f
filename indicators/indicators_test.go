package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Indicator = (*SMA)(nil)
	_ Indicator = (*EMA)(nil)
	_ Indicator = (*ATR)(nil)
)

func TestSMAStreaming(t *testing.T) {
	prices := []float64{102, 105, 106, 108, 110}

	t.Run("basic functionality", func(t *testing.T) {
		ma := NewSMA(3)
		assert.Equal(t, "SMA(3)", ma.Name())
		assert.Equal(t, 3, ma.Warmup())
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())

		ma.Update(prices[0])
		ma.Update(prices[1])
		assert.False(t, ma.Ready())

		ma.Update(prices[2])
		assert.True(t, ma.Ready())
		assert.InDelta(t, (102.0+105.0+106.0)/3.0, ma.Value(), 0.001)

		// Only the last 3 count.
		ma.Update(prices[3])
		assert.InDelta(t, (105.0+106.0+108.0)/3.0, ma.Value(), 0.001)
	})

	t.Run("reset functionality", func(t *testing.T) {
		ma := NewSMA(2)
		ma.Update(prices[0])
		ma.Update(prices[1])
		assert.True(t, ma.Ready())

		ma.Reset()
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())
	})
}

func TestEMAStreaming(t *testing.T) {
	prices := []float64{102, 105, 106, 108, 110, 111, 113}

	t.Run("basic functionality", func(t *testing.T) {
		ema := NewEMA(3)
		assert.Equal(t, "EMA(3)", ema.Name())
		assert.Equal(t, 3, ema.Warmup())
		assert.False(t, ema.Ready())

		ema.Update(prices[0])
		ema.Update(prices[1])
		assert.False(t, ema.Ready())
		assert.Equal(t, 0.0, ema.Value())

		// Seeded with the SMA.
		ema.Update(prices[2])
		assert.True(t, ema.Ready())
		sma := (102.0 + 105.0 + 106.0) / 3.0
		assert.InDelta(t, sma, ema.Value(), 0.001)

		// multiplier = 2/(3+1) = 0.5
		ema.Update(prices[3])
		assert.InDelta(t, (108.0-sma)*0.5+sma, ema.Value(), 0.001)
	})

	t.Run("reset functionality", func(t *testing.T) {
		ema := NewEMA(2)
		ema.Update(prices[0])
		ema.Update(prices[1])
		assert.True(t, ema.Ready())

		ema.Reset()
		assert.False(t, ema.Ready())
		assert.Equal(t, 0.0, ema.Value())
	})

	t.Run("matches batch calculation", func(t *testing.T) {
		ema := NewEMA(5)
		for _, p := range prices {
			ema.Update(p)
		}
		batch, err := EMAOf(prices, 5)
		require.NoError(t, err)
		assert.InDelta(t, batch, ema.Value(), 1e-9)
	})

	t.Run("batch errors", func(t *testing.T) {
		_, err := EMAOf(prices, 0)
		assert.Error(t, err)
		_, err = EMAOf(prices[:2], 3)
		assert.Error(t, err)
	})
}

func TestATRStreaming(t *testing.T) {
	prices := []float64{100, 101, 103, 102, 102, 104}

	t.Run("warmup and wilder smoothing", func(t *testing.T) {
		atr := NewATR(3)
		assert.Equal(t, "ATR(3)", atr.Name())
		assert.Equal(t, 4, atr.Warmup())

		for _, p := range prices[:3] {
			atr.Update(p)
		}
		assert.False(t, atr.Ready())
		assert.Equal(t, 0.0, atr.Value())

		// TRs: 1, 2, 1
		atr.Update(prices[3])
		require.True(t, atr.Ready())
		assert.InDelta(t, 4.0/3.0, atr.Value(), 1e-9)

		// TR 0: (4/3*2 + 0)/3
		atr.Update(prices[4])
		want := (4.0 / 3.0 * 2) / 3
		assert.InDelta(t, want, atr.Value(), 1e-9)

		// TR 2
		atr.Update(prices[5])
		want = (want*2 + 2) / 3
		assert.InDelta(t, want, atr.Value(), 1e-9)
		assert.InDelta(t, want/104*100, atr.Percent(), 1e-9)
	})

	t.Run("reset functionality", func(t *testing.T) {
		atr := NewATR(1)
		atr.Update(1)
		atr.Update(2)
		assert.True(t, atr.Ready())
		atr.Reset()
		assert.False(t, atr.Ready())
		assert.Zero(t, atr.Percent())
	})

	t.Run("batch", func(t *testing.T) {
		v, err := ATROf(prices, 3)
		require.NoError(t, err)
		s := NewATR(3)
		for _, p := range prices {
			s.Update(p)
		}
		assert.InDelta(t, s.Value(), v, 1e-9)

		_, err = ATROf(prices[:3], 3)
		assert.Error(t, err)
	})
}
