// Package risk owns open exposure: it gates new positions, tracks the
// position ledger, and evolves stops and targets as prices move.
package risk

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskdesk/pkg/id"
)

var (
	// ErrRejected matches every *Rejection returned by Open.
	ErrRejected = errors.New("risk: open rejected")

	// ErrInvalidOrder wraps malformed Open requests.
	ErrInvalidOrder = errors.New("risk: invalid order")
)

// Rejection is a policy refusal. Reason is suitable for display.
type Rejection struct {
	Symbol string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk: open %s rejected: %s", r.Symbol, r.Reason)
}

func (r *Rejection) Is(target error) bool { return target == ErrRejected }

// Close reasons emitted by the engine.
const (
	ReasonStopLoss     = "stop loss"
	ReasonTrailingStop = "trailing stop"
	ReasonTakeProfit   = "take profit"
	ReasonTimeStop     = "time stop"
	ReasonDailyLossCut = "daily loss cut"
)

// Gating reasons returned by CanOpen.
const (
	ReasonOK              = "ok"
	RejectBlockedWindow   = "blocked trading window"
	RejectDailyLossCut    = "daily loss cut"
	RejectAlreadyOpen     = "position already open"
	RejectMaxOpen         = "max open positions reached"
	RejectDailyTradeLimit = "daily trade limit reached"
	RejectPositionSize    = "position size exceeds limit"
	RejectRiskPerTrade    = "risk per trade exceeds limit"
)

// MarketContext carries optional per-symbol market metrics. Volatility is an
// ATR-like distance in price units.
type MarketContext struct {
	Volatility float64
	TrendBias  float64
}

// Meta is the signal-side metadata captured at entry.
type Meta struct {
	Volatility  float64
	ExpectedRR  float64
	Confidence  float64
	MaxDuration time.Duration // 0 falls back to Policy.MaxPositionDuration
}

type OpenRequest struct {
	Symbol     string
	Side       Side
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	Meta       Meta
	Equity     float64 // 0 uses the latest equity snapshot
}

func (r OpenRequest) validate() error {
	switch {
	case r.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	case !r.Side.Valid():
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, r.Side)
	case !validPrice(r.EntryPrice):
		return fmt.Errorf("%w: entry price %v", ErrInvalidOrder, r.EntryPrice)
	case !validPrice(r.Quantity):
		return fmt.Errorf("%w: quantity %v", ErrInvalidOrder, r.Quantity)
	case !validPrice(r.StopLoss) || !validPrice(r.TakeProfit):
		return fmt.Errorf("%w: stop %v / target %v", ErrInvalidOrder, r.StopLoss, r.TakeProfit)
	}
	if r.Side == Long && !(r.StopLoss < r.EntryPrice && r.EntryPrice < r.TakeProfit) {
		return fmt.Errorf("%w: long needs stop %.6g < entry %.6g < target %.6g",
			ErrInvalidOrder, r.StopLoss, r.EntryPrice, r.TakeProfit)
	}
	if r.Side == Short && !(r.TakeProfit < r.EntryPrice && r.EntryPrice < r.StopLoss) {
		return fmt.Errorf("%w: short needs target %.6g < entry %.6g < stop %.6g",
			ErrInvalidOrder, r.TakeProfit, r.EntryPrice, r.StopLoss)
	}
	return nil
}

type dailyCounters struct {
	date     time.Time // local midnight of the trading day
	trades   int
	realized float64
	lossCut  bool
}

type Option func(*Engine)

// WithClock replaces time.Now, for replays and tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithEventSink registers the consumer of open/close events.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.sink = s }
}

// Engine is the single owner of the position ledger. Every exported method
// takes mu once; helpers suffixed Locked expect it held and never re-lock.
type Engine struct {
	mu sync.Mutex

	policy Policy
	loc    *time.Location
	now    func() time.Time
	log    *zap.Logger
	sink   EventSink

	open       map[string]*Position
	history    []Position
	lastAction map[string]time.Time
	equity     float64
	day        dailyCounters
}

// NewEngine validates p and returns a ready engine.
func NewEngine(p Policy, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("risk policy: %w", err)
	}
	loc, err := p.location()
	if err != nil {
		return nil, fmt.Errorf("risk policy: %w", err)
	}

	e := &Engine{
		policy:     p.clone(),
		loc:        loc,
		now:        time.Now,
		log:        zap.NewNop(),
		open:       make(map[string]*Position),
		lastAction: make(map[string]time.Time),
		equity:     p.StartingEquity,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.day.date = dayStart(e.now(), e.loc)
	return e, nil
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (e *Engine) rolloverLocked(now time.Time) {
	today := dayStart(now, e.loc)
	if !today.After(e.day.date) {
		return
	}
	e.log.Info("daily counters reset",
		zap.Time("previous", e.day.date),
		zap.Int("trades", e.day.trades),
		zap.Float64("realized_pnl", e.day.realized),
	)
	e.day = dailyCounters{date: today}
}

func (e *Engine) equityFor(equity float64) float64 {
	if validPrice(equity) {
		return equity
	}
	return e.equity
}

func (e *Engine) dailyPnLLocked() float64 {
	pnl := e.day.realized
	for _, p := range e.open {
		pnl += p.PnL
	}
	return pnl
}

func (e *Engine) lossCutBreachedLocked(equity float64) bool {
	limit := equity * e.policy.MaxDailyLossPct / 100
	return e.dailyPnLLocked() <= -limit
}

// Open validates, re-gates and records a new position. Policy refusals
// return a *Rejection; malformed requests wrap ErrInvalidOrder.
func (e *Engine) Open(req OpenRequest) (Position, error) {
	if err := req.validate(); err != nil {
		return Position{}, err
	}

	e.mu.Lock()
	now := e.now()
	e.rolloverLocked(now)
	if validPrice(req.Equity) {
		e.equity = req.Equity
	}

	var mc *MarketContext
	if validPrice(req.Meta.Volatility) {
		mc = &MarketContext{Volatility: req.Meta.Volatility}
	}
	ok, reason := e.canOpenLocked(req.Symbol, mc, e.equity, req.EntryPrice, now)
	if ok {
		reason = e.exposureLocked(req, e.equity)
		ok = reason == ""
	}
	if !ok {
		e.mu.Unlock()
		e.log.Warn("open rejected", zap.String("symbol", req.Symbol), zap.String("reason", reason))
		return Position{}, &Rejection{Symbol: req.Symbol, Reason: reason}
	}

	maxDur := req.Meta.MaxDuration
	if maxDur <= 0 {
		maxDur = e.policy.MaxPositionDuration
	}
	pos := &Position{
		ID:          id.NewAt(now),
		Symbol:      req.Symbol,
		Side:        req.Side,
		EntryPrice:  req.EntryPrice,
		Quantity:    req.Quantity,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		EntryTime:   now,
		MaxDuration: maxDur,
		InitialRisk: abs(req.EntryPrice - req.StopLoss),
		Volatility:  req.Meta.Volatility,
		ExpectedRR:  req.Meta.ExpectedRR,
		Confidence:  req.Meta.Confidence,
		Status:      StatusOpen,
	}
	if pos.ExpectedRR == 0 {
		pos.ExpectedRR = RR(req.EntryPrice, req.StopLoss, req.TakeProfit)
	}
	pos.revalue(req.EntryPrice, e.policy.costRate())

	e.open[pos.Symbol] = pos
	e.day.trades++
	e.lastAction[pos.Symbol] = now
	out := *pos
	e.publish(Event{Kind: EventOpened, Position: out, Time: now})
	e.mu.Unlock()

	e.log.Info("position opened",
		zap.String("id", out.ID),
		zap.String("symbol", out.Symbol),
		zap.String("side", string(out.Side)),
		zap.Float64("entry", out.EntryPrice),
		zap.Float64("qty", out.Quantity),
		zap.Float64("stop", out.StopLoss),
		zap.Float64("target", out.TakeProfit),
	)
	return out, nil
}

// capSlack absorbs float rounding so a size computed by PositionSize is
// never rejected for sitting exactly on its cap.
const capSlack = 1 + 1e-9

func (e *Engine) exposureLocked(req OpenRequest, equity float64) string {
	if req.EntryPrice*req.Quantity > equity*e.policy.MaxPositionSizePct/100*capSlack {
		return RejectPositionSize
	}
	if PlannedRisk(req.Quantity, req.EntryPrice, req.StopLoss) > equity*e.policy.MaxRiskPerTradePct/100*capSlack {
		return RejectRiskPerTrade
	}
	return ""
}

// Close exits the open position for symbol at exitPrice. It reports false
// when there is nothing to close.
func (e *Engine) Close(symbol string, exitPrice float64, reason string) (Position, bool) {
	if !validPrice(exitPrice) {
		e.log.Warn("close ignored: bad exit price", zap.String("symbol", symbol), zap.Float64("price", exitPrice))
		return Position{}, false
	}

	e.mu.Lock()
	now := e.now()
	e.rolloverLocked(now)
	pos, ok := e.open[symbol]
	if !ok {
		e.mu.Unlock()
		e.log.Debug("close ignored: no open position", zap.String("symbol", symbol))
		return Position{}, false
	}
	closed := e.closeLocked(pos, exitPrice, reason, now)
	e.publish(Event{Kind: EventClosed, Position: closed, Reason: reason, Time: now})
	e.mu.Unlock()

	e.logClosed(closed)
	return closed, true
}

// closeLocked is the only open -> closed transition.
func (e *Engine) closeLocked(pos *Position, exitPrice float64, reason string, now time.Time) Position {
	pos.revalue(exitPrice, e.policy.costRate())
	pos.ExitPrice = exitPrice
	pos.ExitTime = now
	if now.Before(pos.EntryTime) {
		pos.ExitTime = pos.EntryTime
	}
	pos.Status = StatusClosed
	pos.CloseReason = reason

	delete(e.open, pos.Symbol)
	e.history = append(e.history, *pos)
	if over := len(e.history) - e.policy.HistoryLimit; over > 0 {
		n := copy(e.history, e.history[over:])
		e.history = e.history[:n]
	}
	e.day.realized += pos.PnL
	e.lastAction[pos.Symbol] = now
	return *pos
}

func (e *Engine) logClosed(p Position) {
	e.log.Info("position closed",
		zap.String("id", p.ID),
		zap.String("symbol", p.Symbol),
		zap.Float64("exit", p.ExitPrice),
		zap.Float64("pnl", p.PnL),
		zap.Float64("pnl_pct", p.PnLPercent),
		zap.String("reason", p.CloseReason),
	)
}

// publish runs under e.mu so sinks see events in ledger order.
func (e *Engine) publish(evs ...Event) {
	if e.sink == nil {
		return
	}
	for _, ev := range evs {
		e.sink.Publish(ev)
	}
}

// Restore re-seeds open positions recovered after a restart. Daily counters
// and cooldowns are left alone. It returns how many were accepted.
func (e *Engine) Restore(positions []Position) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, p := range positions {
		if p.Symbol == "" || !p.Side.Valid() || !validPrice(p.EntryPrice) || !validPrice(p.Quantity) {
			e.log.Warn("restore skipped invalid position", zap.String("id", p.ID), zap.String("symbol", p.Symbol))
			continue
		}
		if _, dup := e.open[p.Symbol]; dup {
			e.log.Warn("restore skipped duplicate symbol", zap.String("id", p.ID), zap.String("symbol", p.Symbol))
			continue
		}
		cp := p
		cp.Status = StatusOpen
		cp.CloseReason = ""
		cp.ExitTime = time.Time{}
		cp.ExitPrice = 0
		if cp.InitialRisk == 0 {
			cp.InitialRisk = abs(cp.EntryPrice - cp.StopLoss)
		}
		if cp.MaxDuration <= 0 {
			cp.MaxDuration = e.policy.MaxPositionDuration
		}
		if cp.LastPrice == 0 {
			cp.revalue(cp.EntryPrice, e.policy.costRate())
		}
		e.open[cp.Symbol] = &cp
		n++
	}
	return n
}

// SetEquity updates the equity snapshot used when callers pass zero.
func (e *Engine) SetEquity(equity float64) {
	if !validPrice(equity) {
		return
	}
	e.mu.Lock()
	e.equity = equity
	e.mu.Unlock()
}

// Equity returns the latest equity snapshot.
func (e *Engine) Equity() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.equity
}

// Policy returns a copy of the active policy.
func (e *Engine) Policy() Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.clone()
}

// UpdatePolicy applies a live adjustment. The change is validated as a
// whole and discarded if invalid.
func (e *Engine) UpdatePolicy(fn func(*Policy)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.policy.clone()
	fn(&next)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("risk policy: %w", err)
	}
	loc, err := next.location()
	if err != nil {
		return fmt.Errorf("risk policy: %w", err)
	}
	e.policy = next
	e.loc = loc
	return nil
}

// Position returns a copy of the open position for symbol.
func (e *Engine) Position(symbol string) (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.open[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// OpenPositions returns copies sorted by symbol.
func (e *Engine) OpenPositions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Position, 0, len(e.open))
	for _, sym := range e.symbolsLocked() {
		out = append(out, *e.open[sym])
	}
	return out
}

func (e *Engine) symbolsLocked() []string {
	syms := make([]string, 0, len(e.open))
	for s := range e.open {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
