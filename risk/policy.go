package risk

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// CorrelationGroup is a set of symbols that share one exposure bucket.
type CorrelationGroup struct {
	Name    string   `json:"name" yaml:"name"`
	Symbols []string `json:"symbols" yaml:"symbols"`
}

// Has reports whether symbol belongs to the group.
func (g CorrelationGroup) Has(symbol string) bool {
	for _, s := range g.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// TimeWindow is a daily wall-clock window, "HH:MM" to "HH:MM".
// A window whose end is before its start wraps past midnight.
type TimeWindow struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("time %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q: bad minute", s)
	}
	return h*60 + m, nil
}

func (w TimeWindow) bounds() (int, int, error) {
	start, err := parseClock(w.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(w.End)
	if err != nil {
		return 0, 0, err
	}
	if start == end {
		return 0, 0, fmt.Errorf("window %s-%s is empty", w.Start, w.End)
	}
	return start, end, nil
}

// Contains reports whether t's wall clock falls inside the window.
// The end minute is exclusive.
func (w TimeWindow) Contains(t time.Time) bool {
	start, end, err := w.bounds()
	if err != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// Policy is the per-session risk configuration. Percentages are expressed
// in percent (5 means 5%), not as fractions.
type Policy struct {
	MaxOpenPositions   int
	MaxDailyTrades     int
	MaxDailyLossPct    float64
	MaxPositionSizePct float64
	MaxRiskPerTradePct float64

	// Stop and target derivation.
	StopLossPct       float64
	TakeProfitPct     float64
	StopATRMultiplier float64
	RiskRewardRatio   float64

	// Protective level evolution.
	BreakEvenTriggerR     float64
	TrailingATRMultiplier float64
	ProfitLockMinPct      float64 // 0 disables the profit ratchet
	ProfitLockFraction    float64

	Cooldown                       time.Duration
	VolatilityCooldownThresholdPct float64
	VolatilityCooldownMaxMultiple  float64

	CorrelationGroups    []CorrelationGroup
	MaxPositionsPerGroup int

	BlockedWindows []TimeWindow
	Timezone       string

	RoundTripCostPct    float64
	MaxPositionDuration time.Duration

	// LossCutForceExit closes positions once the daily loss cut trips.
	// LossCutKeepWinners limits that to positions with PnL <= 0.
	LossCutForceExit   bool
	LossCutKeepWinners bool

	// FillStopsAtLevel exits stop and target hits at the protective level
	// rather than the polled price.
	FillStopsAtLevel bool

	HistoryLimit   int
	StartingEquity float64
	MinConfidence  float64
}

// DefaultPolicy returns the conservative defaults used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxOpenPositions:   3,
		MaxDailyTrades:     10,
		MaxDailyLossPct:    5,
		MaxPositionSizePct: 10,
		MaxRiskPerTradePct: 2,

		StopLossPct:       2,
		TakeProfitPct:     5,
		StopATRMultiplier: 2,
		RiskRewardRatio:   2,

		BreakEvenTriggerR:     1,
		TrailingATRMultiplier: 1.5,
		ProfitLockMinPct:      1,
		ProfitLockFraction:    0.5,

		Cooldown:                       5 * time.Minute,
		VolatilityCooldownThresholdPct: 3,
		VolatilityCooldownMaxMultiple:  3,

		MaxPositionsPerGroup: 1,
		Timezone:             "UTC",

		RoundTripCostPct: 0.1,

		LossCutForceExit:   true,
		LossCutKeepWinners: true,
		FillStopsAtLevel:   true,

		HistoryLimit:   500,
		StartingEquity: 10000,
		MinConfidence:  0.6,
	}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Validate reports the first nonsensical parameter. The engine refuses to
// start with an invalid policy.
func (p Policy) Validate() error {
	switch {
	case p.MaxOpenPositions <= 0:
		return errors.New("max_open_positions must be positive")
	case p.MaxDailyTrades <= 0:
		return errors.New("max_daily_trades must be positive")
	case !positive(p.MaxDailyLossPct) || p.MaxDailyLossPct > 100:
		return errors.New("max_daily_loss_pct must be in (0, 100]")
	case !positive(p.MaxPositionSizePct) || p.MaxPositionSizePct > 100:
		return errors.New("max_position_size_pct must be in (0, 100]")
	case !positive(p.MaxRiskPerTradePct) || p.MaxRiskPerTradePct > 100:
		return errors.New("max_risk_per_trade_pct must be in (0, 100]")
	case !positive(p.StopLossPct) || p.StopLossPct >= 100:
		return errors.New("stop_loss_pct must be in (0, 100)")
	case !positive(p.TakeProfitPct):
		return errors.New("take_profit_pct must be positive")
	case !positive(p.StopATRMultiplier):
		return errors.New("stop_atr_multiplier must be positive")
	case !positive(p.RiskRewardRatio):
		return errors.New("risk_reward_ratio must be positive")
	case !positive(p.BreakEvenTriggerR):
		return errors.New("break_even_trigger_r must be positive")
	case !positive(p.TrailingATRMultiplier):
		return errors.New("trailing_atr_multiplier must be positive")
	case p.ProfitLockMinPct < 0 || math.IsNaN(p.ProfitLockMinPct):
		return errors.New("profit_lock_min_pct must not be negative")
	case p.ProfitLockFraction < 0 || p.ProfitLockFraction >= 1 || math.IsNaN(p.ProfitLockFraction):
		return errors.New("profit_lock_fraction must be in [0, 1)")
	case p.Cooldown < 0:
		return errors.New("cooldown must not be negative")
	case !positive(p.VolatilityCooldownThresholdPct):
		return errors.New("volatility_cooldown_threshold_pct must be positive")
	case p.VolatilityCooldownMaxMultiple < 1 || math.IsInf(p.VolatilityCooldownMaxMultiple, 0):
		return errors.New("volatility_cooldown_max_multiple must be at least 1")
	case p.RoundTripCostPct < 0 || p.RoundTripCostPct >= 100 || math.IsNaN(p.RoundTripCostPct):
		return errors.New("round_trip_cost_pct must be in [0, 100)")
	case p.MaxPositionDuration < 0:
		return errors.New("max_position_duration must not be negative")
	case p.HistoryLimit <= 0:
		return errors.New("history_limit must be positive")
	case !positive(p.StartingEquity):
		return errors.New("starting_equity must be positive")
	case p.MinConfidence < 0 || p.MinConfidence > 1 || math.IsNaN(p.MinConfidence):
		return errors.New("min_confidence must be in [0, 1]")
	}

	if len(p.CorrelationGroups) > 0 && p.MaxPositionsPerGroup <= 0 {
		return errors.New("max_positions_per_group must be positive when correlation groups are set")
	}
	for i, g := range p.CorrelationGroups {
		if g.Name == "" {
			return fmt.Errorf("correlation group %d: name is required", i)
		}
		if len(g.Symbols) == 0 {
			return fmt.Errorf("correlation group %s: no symbols", g.Name)
		}
	}
	for i, w := range p.BlockedWindows {
		if _, _, err := w.bounds(); err != nil {
			return fmt.Errorf("blocked window %d: %w", i, err)
		}
	}
	if _, err := p.location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

func (p Policy) location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(p.Timezone)
}

func (p Policy) costRate() float64 {
	return p.RoundTripCostPct / 100
}

// clone deep-copies the slice fields so callers cannot alias engine state.
func (p Policy) clone() Policy {
	out := p
	if p.CorrelationGroups != nil {
		out.CorrelationGroups = make([]CorrelationGroup, len(p.CorrelationGroups))
		for i, g := range p.CorrelationGroups {
			out.CorrelationGroups[i] = CorrelationGroup{
				Name:    g.Name,
				Symbols: append([]string(nil), g.Symbols...),
			}
		}
	}
	if p.BlockedWindows != nil {
		out.BlockedWindows = append([]TimeWindow(nil), p.BlockedWindows...)
	}
	return out
}
