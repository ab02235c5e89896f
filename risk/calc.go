package risk

import "math"

// PlannedRisk is the cash lost if the stop is hit, before costs.
func PlannedRisk(qty, entry, stop float64) float64 {
	return qty * math.Abs(entry-stop)
}

// RR is the reward-to-risk ratio of a bracket. Zero when risk is zero.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}

// RiskPct returns planned risk as a percent of equity.
func RiskPct(plannedRisk, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRisk / equity * 100
}

// StopFor derives an initial stop. A positive atr gives a volatility stop
// of StopATRMultiplier*atr; otherwise StopLossPct of entry is used.
func StopFor(p Policy, side Side, entry, atr float64) float64 {
	dist := entry * p.StopLossPct / 100
	if validPrice(atr) {
		dist = atr * p.StopATRMultiplier
	}
	// Never let a wide ATR put a long stop at or below zero.
	if side == Long && dist >= entry {
		dist = entry * p.StopLossPct / 100
	}
	return entry - side.sign()*dist
}

// TargetFor places the target RiskRewardRatio times the stop distance away.
func TargetFor(p Policy, side Side, entry, stop float64) float64 {
	reward := math.Abs(entry-stop) * p.RiskRewardRatio
	return entry + side.sign()*reward
}

// PositionSize sizes a trade so the stop risks MaxRiskPerTradePct of equity,
// capped at MaxPositionSizePct of equity in notional.
func PositionSize(p Policy, equity, entry, stop float64) float64 {
	if !validPrice(equity) || !validPrice(entry) {
		return 0
	}
	maxQty := equity * p.MaxPositionSizePct / 100 / entry

	dist := math.Abs(entry - stop)
	if dist == 0 {
		return maxQty
	}
	qty := equity * p.MaxRiskPerTradePct / 100 / dist
	return math.Min(qty, maxQty)
}
