package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/riskdesk/market"
)

// Clock is a settable time source for risk.WithClock.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t. It never moves backwards.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	if t.After(c.t) {
		c.t = t
	}
	c.mu.Unlock()
}

// TickFunc runs once per distinct timestamp after every quote at that
// timestamp has been stored.
type TickFunc func(ctx context.Context, at time.Time) error

type Options struct {
	Store  *market.PriceStore
	Clock  *Clock
	OnTick TickFunc
}

type Stats struct {
	Rows    int
	Ticks   int
	Skipped int
	First   time.Time
	Last    time.Time
}

// ErrOutOfOrder is returned when a row is older than the one before it.
var ErrOutOfOrder = errors.New("replay: rows out of order")

// Run drains feed into opts.Store, advancing opts.Clock and calling
// opts.OnTick at each new timestamp. Invalid quotes are skipped.
func Run(ctx context.Context, feed *Feed, opts Options) (Stats, error) {
	if opts.Store == nil {
		return Stats{}, errors.New("replay: price store is required")
	}
	var (
		st      Stats
		cur     time.Time
		pending bool
	)

	tick := func() error {
		if !pending {
			return nil
		}
		pending = false
		st.Ticks++
		if opts.Clock != nil {
			opts.Clock.Set(cur)
		}
		if opts.OnTick == nil {
			return nil
		}
		return opts.OnTick(ctx, cur)
	}

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		row, ok, err := feed.Next()
		if err != nil {
			return st, err
		}
		if !ok {
			break
		}
		if pending && row.Time.Before(cur) {
			return st, fmt.Errorf("%w: %s after %s", ErrOutOfOrder, row.Time.Format(time.RFC3339), cur.Format(time.RFC3339))
		}
		if pending && row.Time.After(cur) {
			if err := tick(); err != nil {
				return st, err
			}
		}

		if err := opts.Store.Set(market.Quote{Symbol: row.Symbol, Price: row.Price, Time: row.Time}); err != nil {
			st.Skipped++
			continue
		}
		st.Rows++
		if st.First.IsZero() {
			st.First = row.Time
		}
		st.Last = row.Time
		cur = row.Time
		pending = true
	}
	return st, tick()
}
