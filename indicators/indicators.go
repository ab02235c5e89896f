// Package indicators provides streaming technical indicators over last-trade
// prices.
package indicators

import "fmt"

// Indicator computes a single streaming value from price samples.
// It is deterministic and safe to use in live loops and replays.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "ATR(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next price sample.
	Update(price float64)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, or 0 while !Ready().
	Value() float64
}

func checkPeriod(period int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	return nil
}
