package notify

import (
	"github.com/rustyeddy/riskdesk/journal"
	"github.com/rustyeddy/riskdesk/risk"
)

func ToTradeRecord(p risk.Position) journal.TradeRecord {
	rec := journal.TradeRecord{
		TradeID:    p.ID,
		Symbol:     p.Symbol,
		Side:       string(p.Side),
		Quantity:   p.Quantity,
		EntryPrice: p.EntryPrice,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		OpenTime:   p.EntryTime,
		PnL:        p.PnL,
		PnLPercent: p.PnLPercent,
		Status:     journal.StatusOpen,
	}
	if !p.IsOpen() {
		rec.Status = journal.StatusClosed
		rec.ExitPrice = p.ExitPrice
		rec.CloseTime = p.ExitTime
		rec.Reason = p.CloseReason
		rec.DurationMinutes = p.Duration(p.ExitTime).Minutes()
	}
	return rec
}

func ToCloseRecord(p risk.Position) journal.CloseRecord {
	return journal.CloseRecord{
		TradeID:    p.ID,
		ExitPrice:  p.ExitPrice,
		ExitTime:   p.ExitTime,
		PnL:        p.PnL,
		PnLPercent: p.PnLPercent,
		Reason:     p.CloseReason,
	}
}

// FromTradeRecord rebuilds an open position from its journal row, for
// Engine.Restore. Protective-level state not stored in the journal
// (break-even, trailing) starts fresh.
func FromTradeRecord(t journal.TradeRecord) risk.Position {
	return risk.Position{
		ID:         t.TradeID,
		Symbol:     t.Symbol,
		Side:       risk.Side(t.Side),
		EntryPrice: t.EntryPrice,
		Quantity:   t.Quantity,
		StopLoss:   t.StopLoss,
		TakeProfit: t.TakeProfit,
		EntryTime:  t.OpenTime,
		Status:     risk.StatusOpen,
	}
}
