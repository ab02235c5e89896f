package risk

import (
	"fmt"
	"math"
	"time"
)

// CanOpen reports whether a new position on symbol is allowed right now,
// and why not. mc, equity and price are optional (nil / 0). Apart from the
// daily rollover it has no side effects.
func (e *Engine) CanOpen(symbol string, mc *MarketContext, equity, price float64) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.rolloverLocked(now)
	return e.canOpenLocked(symbol, mc, e.equityFor(equity), price, now)
}

func (e *Engine) canOpenLocked(symbol string, mc *MarketContext, equity, price float64, now time.Time) (bool, string) {
	local := now.In(e.loc)
	for _, w := range e.policy.BlockedWindows {
		if w.Contains(local) {
			return false, RejectBlockedWindow
		}
	}

	if e.day.lossCut || e.lossCutBreachedLocked(equity) {
		return false, RejectDailyLossCut
	}

	if _, ok := e.open[symbol]; ok {
		return false, RejectAlreadyOpen
	}

	for _, g := range e.policy.CorrelationGroups {
		if !g.Has(symbol) {
			continue
		}
		n := 0
		for s := range e.open {
			if g.Has(s) {
				n++
			}
		}
		if n >= e.policy.MaxPositionsPerGroup {
			return false, fmt.Sprintf("correlation group %s full (%d/%d)", g.Name, n, e.policy.MaxPositionsPerGroup)
		}
	}

	if last, ok := e.lastAction[symbol]; ok {
		cooldown := e.cooldownLocked(mc, price)
		if remaining := cooldown - now.Sub(last); remaining > 0 {
			return false, fmt.Sprintf("cooldown active (%ds remaining)", int(math.Ceil(remaining.Seconds())))
		}
	}

	if len(e.open) >= e.policy.MaxOpenPositions {
		return false, RejectMaxOpen
	}

	if e.day.trades >= e.policy.MaxDailyTrades {
		return false, RejectDailyTradeLimit
	}

	return true, ReasonOK
}

// cooldownLocked stretches the base cooldown when volatility, as a percent
// of price, runs above the threshold. The stretch grows with the excess and
// is capped at VolatilityCooldownMaxMultiple.
func (e *Engine) cooldownLocked(mc *MarketContext, price float64) time.Duration {
	base := e.policy.Cooldown
	if base <= 0 || mc == nil || !validPrice(mc.Volatility) || !validPrice(price) {
		return base
	}
	volPct := mc.Volatility / price * 100
	th := e.policy.VolatilityCooldownThresholdPct
	if volPct <= th {
		return base
	}
	mult := math.Min(1+(volPct-th)/th, e.policy.VolatilityCooldownMaxMultiple)
	return time.Duration(float64(base) * mult)
}
