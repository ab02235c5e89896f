package risk

import (
	"time"

	"go.uber.org/zap"
)

// UpdateAll revalues every open position against prices, moves protective
// levels and closes positions whose exit condition holds. Symbols missing
// from prices are left untouched. It returns the positions closed by this
// call, each carrying its CloseReason.
func (e *Engine) UpdateAll(prices map[string]float64, ctxs map[string]MarketContext) []Position {
	e.mu.Lock()

	now := e.now()
	e.rolloverLocked(now)
	costRate := e.policy.costRate()
	symbols := e.symbolsLocked()

	marks := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		if !validPrice(price) {
			e.log.Warn("update skipped: bad price", zap.String("symbol", sym), zap.Float64("price", price))
			continue
		}
		e.open[sym].revalue(price, costRate)
		marks[sym] = price
	}

	var closed []Position
	if e.policy.LossCutForceExit && e.lossCutBreachedLocked(e.equity) {
		e.day.lossCut = true
		closed = e.lossCutLocked(symbols, marks, now)
	}

	// When the loss cut closed something the rest of this pass is skipped.
	// Winners it preserved still get their protective levels managed.
	if len(closed) == 0 {
		for _, sym := range symbols {
			price, ok := marks[sym]
			if !ok {
				continue
			}
			pos := e.open[sym]
			vol := 0.0
			if mc, ok := ctxs[sym]; ok {
				switch {
				case validPrice(mc.Volatility):
					vol = mc.Volatility
				case !finite(mc.Volatility):
					e.log.Warn("ignoring bad volatility", zap.String("symbol", sym), zap.Float64("volatility", mc.Volatility))
				}
			}
			if reason, exit := e.stepLocked(pos, price, vol, now); reason != "" {
				closed = append(closed, e.closeLocked(pos, exit, reason, now))
			}
		}
	}
	evs := make([]Event, 0, len(closed))
	for _, p := range closed {
		evs = append(evs, Event{Kind: EventClosed, Position: p, Reason: p.CloseReason, Time: now})
	}
	e.publish(evs...)
	e.mu.Unlock()

	for _, p := range closed {
		e.logClosed(p)
	}
	return closed
}

func (e *Engine) lossCutLocked(symbols []string, marks map[string]float64, now time.Time) []Position {
	var closed []Position
	for _, sym := range symbols {
		pos := e.open[sym]
		if e.policy.LossCutKeepWinners && pos.PnL > 0 {
			continue
		}
		price, ok := marks[sym]
		if !ok {
			price = pos.LastPrice
		}
		if !validPrice(price) {
			e.log.Warn("loss cut: no price to exit at", zap.String("symbol", sym))
			continue
		}
		closed = append(closed, e.closeLocked(pos, price, ReasonDailyLossCut, now))
	}
	if len(closed) > 0 {
		e.log.Warn("daily loss cut triggered", zap.Int("closed", len(closed)), zap.Float64("realized_pnl", e.day.realized))
	}
	return closed
}

// stepLocked evolves one position at price and returns a close reason and
// exit price when it must exit. pos must already be revalued at price.
func (e *Engine) stepLocked(pos *Position, price, vol float64, now time.Time) (string, float64) {
	sign := pos.Side.sign()
	move := sign * (price - pos.EntryPrice)

	// Break-even arms once and stays armed. It waits while the cost-buffered
	// level would sit at or through the market.
	if !pos.BreakEvenArmed && pos.RMultiple(price) >= e.policy.BreakEvenTriggerR {
		be := pos.EntryPrice + sign*pos.EntryPrice*e.policy.costRate()
		if sign*(price-be) > 0 {
			pos.BreakEvenArmed = true
			if pos.betterStop(be) {
				e.moveStopLocked(pos, be, "break-even")
			}
		}
	}

	if vol > 0 {
		trail := price - sign*vol*e.policy.TrailingATRMultiplier
		if pos.betterStop(trail) {
			e.moveStopLocked(pos, trail, "atr trail")
		}
	} else if e.policy.ProfitLockMinPct > 0 && move > 0 && pos.PnLPercent >= e.policy.ProfitLockMinPct {
		lock := pos.EntryPrice + sign*move*e.policy.ProfitLockFraction
		if pos.betterStop(lock) {
			e.moveStopLocked(pos, lock, "profit lock")
		}
	}

	if pos.MaxDuration > 0 && now.Sub(pos.EntryTime) > pos.MaxDuration {
		return ReasonTimeStop, price
	}

	if sign*(price-pos.StopLoss) <= 0 {
		reason := ReasonStopLoss
		if pos.StopMoved {
			reason = ReasonTrailingStop
		}
		return reason, e.fillAt(pos.StopLoss, price)
	}

	if sign*(price-pos.TakeProfit) >= 0 {
		return ReasonTakeProfit, e.fillAt(pos.TakeProfit, price)
	}
	return "", 0
}

func (e *Engine) moveStopLocked(pos *Position, stop float64, why string) {
	e.log.Debug("stop moved",
		zap.String("symbol", pos.Symbol),
		zap.Float64("from", pos.StopLoss),
		zap.Float64("to", stop),
		zap.String("by", why),
	)
	pos.StopLoss = stop
	pos.StopMoved = true
}

func (e *Engine) fillAt(level, price float64) float64 {
	if e.policy.FillStopsAtLevel {
		return level
	}
	return price
}
