package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// testPolicy removes costs, cooldowns and exposure caps so scenarios can
// focus on one rule at a time.
func testPolicy() Policy {
	p := DefaultPolicy()
	p.RoundTripCostPct = 0
	p.Cooldown = 0
	p.MaxPositionSizePct = 100
	p.MaxRiskPerTradePct = 100
	return p
}

func newTestEngine(t *testing.T, p Policy) (*Engine, *fakeClock, *recordingSink) {
	t.Helper()
	clock := newClock(t0)
	sink := &recordingSink{}
	e, err := NewEngine(p,
		WithClock(clock.Now),
		WithLogger(zaptest.NewLogger(t)),
		WithEventSink(sink),
	)
	require.NoError(t, err)
	return e, clock, sink
}

func longReq(symbol string, entry, qty, stop, target float64) OpenRequest {
	return OpenRequest{
		Symbol:     symbol,
		Side:       Long,
		EntryPrice: entry,
		Quantity:   qty,
		StopLoss:   stop,
		TakeProfit: target,
		Equity:     10000,
	}
}

func shortReq(symbol string, entry, qty, stop, target float64) OpenRequest {
	r := longReq(symbol, entry, qty, stop, target)
	r.Side = Short
	return r
}

func mustOpen(t *testing.T, e *Engine, req OpenRequest) Position {
	t.Helper()
	p, err := e.Open(req)
	require.NoError(t, err)
	return p
}
