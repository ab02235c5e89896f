package indicators

import (
	"fmt"
	"math"
)

// ATR is a streaming average true range over last-trade prices. Without
// highs and lows the true range of a sample is |price - previous price|;
// it is smoothed with Wilder's method after a simple-average warmup.
type ATR struct {
	period      int
	atr         float64
	count       int
	warmupSum   float64
	prev        float64
	hasPrevious bool
}

func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR(%d)", a.period) }

// Warmup is period+1 because the first sample only seeds the previous price.
func (a *ATR) Warmup() int { return a.period + 1 }

func (a *ATR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.hasPrevious = false
}

func (a *ATR) Update(price float64) {
	if !a.hasPrevious {
		a.prev = price
		a.hasPrevious = true
		return
	}

	tr := math.Abs(price - a.prev)
	a.prev = price

	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
		return
	}
	a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
}

func (a *ATR) Ready() bool { return a.count >= a.period }

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

// Percent returns ATR as a percent of the last price.
func (a *ATR) Percent() float64 {
	if !a.Ready() || a.prev == 0 {
		return 0
	}
	return a.atr / a.prev * 100
}

// ATROf is the batch form of ATR over prices.
func ATROf(prices []float64, period int) (float64, error) {
	if err := checkPeriod(period); err != nil {
		return 0, err
	}
	if len(prices) < period+1 {
		return 0, fmt.Errorf("not enough prices: need %d, got %d", period+1, len(prices))
	}
	a := NewATR(period)
	for _, p := range prices {
		a.Update(p)
	}
	return a.Value(), nil
}
