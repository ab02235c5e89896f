package risk

// PortfolioSummary is a point-in-time view of exposure and today's PnL.
type PortfolioSummary struct {
	OpenPositions    int
	DailyTrades      int
	DailyRealizedPnL float64
	UnrealizedPnL    float64
	TotalPnL         float64
	Positions        []Position
}

// PerformanceStats is computed from closed-position history. AvgLoss is a
// positive magnitude; WinRate is in percent.
type PerformanceStats struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalPnL      float64
	AvgWin        float64
	AvgLoss       float64
	ProfitFactor  float64
	LargestWin    float64
	LargestLoss   float64
}

// Summary revalues copies of the open positions against prices. Symbols
// without a usable price keep their last mark. The ledger is not modified.
func (e *Engine) Summary(prices map[string]float64) PortfolioSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	costRate := e.policy.costRate()
	s := PortfolioSummary{
		OpenPositions:    len(e.open),
		DailyTrades:      e.day.trades,
		DailyRealizedPnL: e.day.realized,
		Positions:        make([]Position, 0, len(e.open)),
	}
	for _, sym := range e.symbolsLocked() {
		p := *e.open[sym]
		if price, ok := prices[sym]; ok && validPrice(price) {
			p.revalue(price, costRate)
		}
		s.UnrealizedPnL += p.PnL
		s.Positions = append(s.Positions, p)
	}
	s.TotalPnL = s.DailyRealizedPnL + s.UnrealizedPnL
	return s
}

// Stats summarizes closed history. Empty history yields all zeros.
func (e *Engine) Stats() PerformanceStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return computeStats(e.history)
}

// History returns copies of the closed positions, oldest first.
func (e *Engine) History() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Position(nil), e.history...)
}

func computeStats(history []Position) PerformanceStats {
	var s PerformanceStats
	if len(history) == 0 {
		return s
	}

	var wins, losses float64
	s.TotalTrades = len(history)
	s.LargestWin = history[0].PnL
	s.LargestLoss = history[0].PnL
	for _, p := range history {
		s.TotalPnL += p.PnL
		switch {
		case p.PnL > 0:
			s.WinningTrades++
			wins += p.PnL
		case p.PnL < 0:
			s.LosingTrades++
			losses -= p.PnL
		}
		if p.PnL > s.LargestWin {
			s.LargestWin = p.PnL
		}
		if p.PnL < s.LargestLoss {
			s.LargestLoss = p.PnL
		}
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	if s.WinningTrades > 0 {
		s.AvgWin = wins / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = losses / float64(s.LosingTrades)
	}
	if losses > 0 {
		s.ProfitFactor = wins / losses
	}
	return s
}
