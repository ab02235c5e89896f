package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/riskdesk/risk"
	"github.com/rustyeddy/riskdesk/strategy"
)

// Config is the complete riskdesk configuration
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Strategy  StrategyConfig  `json:"strategy" yaml:"strategy"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Notify    NotifyConfig    `json:"notify" yaml:"notify"`
}

type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Equity   float64 `json:"equity" yaml:"equity"`
}

// RiskConfig mirrors risk.Policy. Percentages are in percent; durations
// are Go duration strings ("5m", "4h").
type RiskConfig struct {
	MaxOpenPositions   int     `json:"max_open_positions" yaml:"max_open_positions"`
	MaxDailyTrades     int     `json:"max_daily_trades" yaml:"max_daily_trades"`
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	MaxPositionSizePct float64 `json:"max_position_size_pct" yaml:"max_position_size_pct"`
	MaxRiskPerTradePct float64 `json:"max_risk_per_trade_pct" yaml:"max_risk_per_trade_pct"`

	StopLossPct       float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct     float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	StopATRMultiplier float64 `json:"stop_atr_multiplier" yaml:"stop_atr_multiplier"`
	RiskRewardRatio   float64 `json:"risk_reward_ratio" yaml:"risk_reward_ratio"`

	BreakEvenTriggerR     float64 `json:"break_even_trigger_r" yaml:"break_even_trigger_r"`
	TrailingATRMultiplier float64 `json:"trailing_atr_multiplier" yaml:"trailing_atr_multiplier"`
	ProfitLockMinPct      float64 `json:"profit_lock_min_pct" yaml:"profit_lock_min_pct"`
	ProfitLockFraction    float64 `json:"profit_lock_fraction" yaml:"profit_lock_fraction"`

	Cooldown                       string  `json:"cooldown" yaml:"cooldown"`
	VolatilityCooldownThresholdPct float64 `json:"volatility_cooldown_threshold_pct" yaml:"volatility_cooldown_threshold_pct"`
	VolatilityCooldownMaxMultiple  float64 `json:"volatility_cooldown_max_multiple" yaml:"volatility_cooldown_max_multiple"`

	CorrelationGroups    []risk.CorrelationGroup `json:"correlation_groups,omitempty" yaml:"correlation_groups,omitempty"`
	MaxPositionsPerGroup int                     `json:"max_positions_per_group" yaml:"max_positions_per_group"`

	BlockedWindows []risk.TimeWindow `json:"blocked_windows,omitempty" yaml:"blocked_windows,omitempty"`
	Timezone       string            `json:"timezone" yaml:"timezone"`

	RoundTripCostPct    float64 `json:"round_trip_cost_pct" yaml:"round_trip_cost_pct"`
	MaxPositionDuration string  `json:"max_position_duration" yaml:"max_position_duration"`

	LossCutForceExit   bool `json:"loss_cut_force_exit" yaml:"loss_cut_force_exit"`
	LossCutKeepWinners bool `json:"loss_cut_keep_winners" yaml:"loss_cut_keep_winners"`
	FillStopsAtLevel   bool `json:"fill_stops_at_level" yaml:"fill_stops_at_level"`

	HistoryLimit  int     `json:"history_limit" yaml:"history_limit"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
}

type SchedulerConfig struct {
	Symbols          []string `json:"symbols" yaml:"symbols"`
	Interval         string   `json:"interval" yaml:"interval"`
	WatchdogInterval string   `json:"watchdog_interval" yaml:"watchdog_interval"`
	ErrorBackoff     string   `json:"error_backoff" yaml:"error_backoff"`
	StaleAfter       string   `json:"stale_after,omitempty" yaml:"stale_after,omitempty"`
	StatusEvery      int      `json:"status_every" yaml:"status_every"`
}

// Timing is SchedulerConfig with its durations parsed.
type Timing struct {
	Interval         time.Duration
	WatchdogInterval time.Duration
	ErrorBackoff     time.Duration
	StaleAfter       time.Duration
}

type StrategyConfig struct {
	FastPeriod int     `json:"fast_period" yaml:"fast_period"`
	SlowPeriod int     `json:"slow_period" yaml:"slow_period"`
	ATRPeriod  int     `json:"atr_period" yaml:"atr_period"`
	MinSpread  float64 `json:"min_spread,omitempty" yaml:"min_spread,omitempty"`
}

// JournalConfig selects the trade journal backend
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "sqlite", "csv" or "none"
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Production bool   `json:"production" yaml:"production"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// NotifyConfig configures the optional webhook notifier. An empty
// WebhookURL disables it.
type NotifyConfig struct {
	WebhookURL  string `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	MinInterval string `json:"min_interval" yaml:"min_interval"`
	MaxPerHour  int    `json:"max_per_hour" yaml:"max_per_hour"`
	QueueLimit  int    `json:"queue_limit" yaml:"queue_limit"`
}

// LoadFromFile reads YAML, falling back to JSON. Missing keys keep their
// Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// Policy converts the risk section into a risk.Policy. The result is not
// validated; use Validate or risk.NewEngine for that.
func (c *Config) Policy() (risk.Policy, error) {
	r := c.Risk
	cooldown, err := parseDuration("risk.cooldown", r.Cooldown)
	if err != nil {
		return risk.Policy{}, err
	}
	maxDur, err := parseDuration("risk.max_position_duration", r.MaxPositionDuration)
	if err != nil {
		return risk.Policy{}, err
	}

	return risk.Policy{
		MaxOpenPositions:   r.MaxOpenPositions,
		MaxDailyTrades:     r.MaxDailyTrades,
		MaxDailyLossPct:    r.MaxDailyLossPct,
		MaxPositionSizePct: r.MaxPositionSizePct,
		MaxRiskPerTradePct: r.MaxRiskPerTradePct,

		StopLossPct:       r.StopLossPct,
		TakeProfitPct:     r.TakeProfitPct,
		StopATRMultiplier: r.StopATRMultiplier,
		RiskRewardRatio:   r.RiskRewardRatio,

		BreakEvenTriggerR:     r.BreakEvenTriggerR,
		TrailingATRMultiplier: r.TrailingATRMultiplier,
		ProfitLockMinPct:      r.ProfitLockMinPct,
		ProfitLockFraction:    r.ProfitLockFraction,

		Cooldown:                       cooldown,
		VolatilityCooldownThresholdPct: r.VolatilityCooldownThresholdPct,
		VolatilityCooldownMaxMultiple:  r.VolatilityCooldownMaxMultiple,

		CorrelationGroups:    append([]risk.CorrelationGroup(nil), r.CorrelationGroups...),
		MaxPositionsPerGroup: r.MaxPositionsPerGroup,

		BlockedWindows: append([]risk.TimeWindow(nil), r.BlockedWindows...),
		Timezone:       r.Timezone,

		RoundTripCostPct:    r.RoundTripCostPct,
		MaxPositionDuration: maxDur,

		LossCutForceExit:   r.LossCutForceExit,
		LossCutKeepWinners: r.LossCutKeepWinners,
		FillStopsAtLevel:   r.FillStopsAtLevel,

		HistoryLimit:   r.HistoryLimit,
		StartingEquity: c.Account.Equity,
		MinConfidence:  r.MinConfidence,
	}, nil
}

// fromPolicy fills a RiskConfig from p.
func fromPolicy(p risk.Policy) RiskConfig {
	rc := RiskConfig{
		MaxOpenPositions:               p.MaxOpenPositions,
		MaxDailyTrades:                 p.MaxDailyTrades,
		MaxDailyLossPct:                p.MaxDailyLossPct,
		MaxPositionSizePct:             p.MaxPositionSizePct,
		MaxRiskPerTradePct:             p.MaxRiskPerTradePct,
		StopLossPct:                    p.StopLossPct,
		TakeProfitPct:                  p.TakeProfitPct,
		StopATRMultiplier:              p.StopATRMultiplier,
		RiskRewardRatio:                p.RiskRewardRatio,
		BreakEvenTriggerR:              p.BreakEvenTriggerR,
		TrailingATRMultiplier:          p.TrailingATRMultiplier,
		ProfitLockMinPct:               p.ProfitLockMinPct,
		ProfitLockFraction:             p.ProfitLockFraction,
		Cooldown:                       p.Cooldown.String(),
		VolatilityCooldownThresholdPct: p.VolatilityCooldownThresholdPct,
		VolatilityCooldownMaxMultiple:  p.VolatilityCooldownMaxMultiple,
		CorrelationGroups:              p.CorrelationGroups,
		MaxPositionsPerGroup:           p.MaxPositionsPerGroup,
		BlockedWindows:                 p.BlockedWindows,
		Timezone:                       p.Timezone,
		RoundTripCostPct:               p.RoundTripCostPct,
		LossCutForceExit:               p.LossCutForceExit,
		LossCutKeepWinners:             p.LossCutKeepWinners,
		FillStopsAtLevel:               p.FillStopsAtLevel,
		HistoryLimit:                   p.HistoryLimit,
		MinConfidence:                  p.MinConfidence,
	}
	if p.MaxPositionDuration > 0 {
		rc.MaxPositionDuration = p.MaxPositionDuration.String()
	}
	return rc
}

// Timing parses the scheduler durations.
func (s SchedulerConfig) Timing() (Timing, error) {
	var (
		t   Timing
		err error
	)
	if t.Interval, err = parseDuration("scheduler.interval", s.Interval); err != nil {
		return Timing{}, err
	}
	if t.WatchdogInterval, err = parseDuration("scheduler.watchdog_interval", s.WatchdogInterval); err != nil {
		return Timing{}, err
	}
	if t.ErrorBackoff, err = parseDuration("scheduler.error_backoff", s.ErrorBackoff); err != nil {
		return Timing{}, err
	}
	if t.StaleAfter, err = parseDuration("scheduler.stale_after", s.StaleAfter); err != nil {
		return Timing{}, err
	}
	return t, nil
}

func (s StrategyConfig) EMACross() strategy.EMACrossConfig {
	return strategy.EMACrossConfig{
		FastPeriod: s.FastPeriod,
		SlowPeriod: s.SlowPeriod,
		ATRPeriod:  s.ATRPeriod,
		MinSpread:  s.MinSpread,
	}
}

// WebhookMinInterval parses notify.min_interval.
func (n NotifyConfig) WebhookMinInterval() (time.Duration, error) {
	return parseDuration("notify.min_interval", n.MinInterval)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Equity <= 0 {
		return fmt.Errorf("account.equity must be positive")
	}

	p, err := c.Policy()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}

	if len(c.Scheduler.Symbols) == 0 {
		return fmt.Errorf("scheduler.symbols must list at least one symbol")
	}
	for _, s := range c.Scheduler.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("scheduler.symbols contains an empty symbol")
		}
	}
	t, err := c.Scheduler.Timing()
	if err != nil {
		return err
	}
	if t.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if t.WatchdogInterval <= 0 {
		return fmt.Errorf("scheduler.watchdog_interval must be positive")
	}
	if c.Scheduler.StatusEvery < 0 {
		return fmt.Errorf("scheduler.status_every must not be negative")
	}

	if err := c.Strategy.EMACross().Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "csv":
		if c.Journal.TradesFile == "" {
			return fmt.Errorf("journal trades_file required for CSV type")
		}
	case "none":
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv' or 'none'")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr required when metrics are enabled")
	}

	if c.Notify.WebhookURL != "" {
		u, err := url.Parse(c.Notify.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notify.webhook_url must be an http(s) URL")
		}
	}
	if _, err := c.Notify.WebhookMinInterval(); err != nil {
		return err
	}
	if c.Notify.MaxPerHour < 0 || c.Notify.QueueLimit < 0 {
		return fmt.Errorf("notify limits must not be negative")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	p := risk.DefaultPolicy()
	return &Config{
		Account: AccountConfig{
			ID:       "PAPER-001",
			Currency: "USD",
			Equity:   p.StartingEquity,
		},
		Risk: fromPolicy(p),
		Scheduler: SchedulerConfig{
			Symbols:          []string{"BTC/USDT", "ETH/USDT"},
			Interval:         "1m",
			WatchdogInterval: "15s",
			ErrorBackoff:     "5s",
			StatusEvery:      10,
		},
		Strategy: StrategyConfig{
			FastPeriod: 9,
			SlowPeriod: 21,
			ATRPeriod:  14,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./riskdesk.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Notify: NotifyConfig{
			MinInterval: "2s",
			MaxPerHour:  30,
			QueueLimit:  1000,
		},
	}
}
