// Package journal persists the trade lifecycle: one row per position,
// written at open and completed at close.
package journal

import (
	"errors"
	"time"
)

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

var (
	ErrNotFound      = errors.New("trade not found")
	ErrAlreadyClosed = errors.New("trade already closed")
)

type TradeRecord struct {
	TradeID    string
	Symbol     string
	Side       string
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	StopLoss   float64
	TakeProfit float64
	OpenTime   time.Time
	CloseTime  time.Time // zero while open

	PnL             float64
	PnLPercent      float64
	Status          string
	Reason          string
	DurationMinutes float64
}

func (t TradeRecord) IsOpen() bool { return t.Status == StatusOpen }

// CloseRecord completes a previously opened trade.
type CloseRecord struct {
	TradeID    string
	ExitPrice  float64
	ExitTime   time.Time
	PnL        float64
	PnLPercent float64
	Reason     string
}

type Journal interface {
	RecordOpen(TradeRecord) error
	RecordClose(CloseRecord) error
	Close() error
}

// Recoverer lists trades still open, for re-seeding the engine on restart.
type Recoverer interface {
	ListOpen() ([]TradeRecord, error)
}

func durationMinutes(open, close time.Time) float64 {
	if close.Before(open) {
		return 0
	}
	return close.Sub(open).Minutes()
}
