package market

import "context"

type Action string

const (
	Hold       Action = "hold"
	EnterLong  Action = "enter-long"
	EnterShort Action = "enter-short"
	Exit       Action = "exit"
)

func (a Action) IsEntry() bool {
	return a == EnterLong || a == EnterShort
}

// Signal is a strategy's view of one symbol. Volatility is an ATR-like
// distance in price units; TrendBias is in [-1, 1].
type Signal struct {
	Action     Action
	Confidence float64
	Volatility float64
	TrendBias  float64
	Reason     string
}

// SignalProvider evaluates the current market for a symbol.
type SignalProvider interface {
	Evaluate(ctx context.Context, symbol string) (Signal, error)
}
