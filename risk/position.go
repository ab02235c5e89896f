package risk

import (
	"math"
	"time"
)

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

func (s Side) Valid() bool {
	return s == Long || s == Short
}

// sign is +1 for long and -1 for short, so sign*(price-entry) is the
// favorable move in either direction.
func (s Side) sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Position is one open or closed directional exposure. The engine hands out
// copies only; mutating a returned Position has no effect on the ledger.
type Position struct {
	ID     string
	Symbol string
	Side   Side

	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64

	// PnL is unrealized while open and final once closed. Both are net of
	// the estimated round-trip cost.
	PnL        float64
	PnLPercent float64
	LastPrice  float64
	ExitPrice  float64

	EntryTime   time.Time
	ExitTime    time.Time
	MaxDuration time.Duration

	InitialRisk    float64
	Volatility     float64
	ExpectedRR     float64
	Confidence     float64
	BreakEvenArmed bool
	StopMoved      bool

	Status      Status
	CloseReason string
}

func (p Position) IsOpen() bool { return p.Status == StatusOpen }

func (p Position) Notional() float64 { return p.EntryPrice * p.Quantity }

// GrossPnLAt is the price move times quantity, before costs.
func (p Position) GrossPnLAt(price float64) float64 {
	return p.Side.sign() * (price - p.EntryPrice) * p.Quantity
}

// NetPnLAt deducts the round-trip cost estimate (entry notional * rate).
func (p Position) NetPnLAt(price, costRate float64) float64 {
	return p.GrossPnLAt(price) - p.Notional()*costRate
}

// RMultiple expresses the favorable move at price in units of initial risk.
func (p Position) RMultiple(price float64) float64 {
	if p.InitialRisk <= 0 {
		return 0
	}
	return p.Side.sign() * (price - p.EntryPrice) / p.InitialRisk
}

// Duration is time in the trade: up to now while open, to exit once closed.
func (p Position) Duration(now time.Time) time.Duration {
	end := now
	if p.Status == StatusClosed {
		end = p.ExitTime
	}
	if end.Before(p.EntryTime) {
		return 0
	}
	return end.Sub(p.EntryTime)
}

// betterStop reports whether candidate tightens the stop in the trader's
// favor. Stops never loosen.
func (p Position) betterStop(candidate float64) bool {
	if !finite(candidate) || candidate <= 0 {
		return false
	}
	if p.Side == Short {
		return candidate < p.StopLoss
	}
	return candidate > p.StopLoss
}

func (p *Position) revalue(price, costRate float64) {
	p.LastPrice = price
	p.PnL = p.NetPnLAt(price, costRate)
	p.PnLPercent = pnlPercent(p.PnL, p.Notional())
}

func pnlPercent(pnl, notional float64) float64 {
	if notional <= 0 {
		return 0
	}
	return pnl / notional * 100
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validPrice(v float64) bool {
	return finite(v) && v > 0
}
