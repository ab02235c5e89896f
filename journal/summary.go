package journal

import "github.com/shopspring/decimal"

// Summary aggregates closed trades. Money totals are summed as decimals so
// long journals do not drift.
type Summary struct {
	Trades int
	Wins   int
	Losses int

	WinRate            float64 // percent
	NetPnL             decimal.Decimal
	GrossProfit        decimal.Decimal
	GrossLoss          decimal.Decimal // positive magnitude
	ProfitFactor       float64         // 0 when there are no losses
	AvgDurationMinutes float64
}

// Summarize ignores trades that are still open.
func Summarize(trades []TradeRecord) Summary {
	var (
		s   Summary
		dur float64
	)
	for _, t := range trades {
		if t.IsOpen() {
			continue
		}
		pnl := decimal.NewFromFloat(t.PnL)
		s.Trades++
		s.NetPnL = s.NetPnL.Add(pnl)
		dur += t.DurationMinutes
		switch {
		case pnl.IsPositive():
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(pnl)
		case pnl.IsNegative():
			s.Losses++
			s.GrossLoss = s.GrossLoss.Sub(pnl)
		}
	}
	if s.Trades == 0 {
		return s
	}
	s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	s.AvgDurationMinutes = dur / float64(s.Trades)
	if s.GrossLoss.IsPositive() {
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss).InexactFloat64()
	}
	return s
}
