package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// ErrNoPrice is returned when a symbol has never been quoted.
var ErrNoPrice = errors.New("price not found")

// QuoteSupplier returns the last trade price for a symbol.
type QuoteSupplier interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// QuoteSupplierFunc adapts a function to QuoteSupplier.
type QuoteSupplierFunc func(ctx context.Context, symbol string) (float64, error)

func (f QuoteSupplierFunc) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}

type Quote struct {
	Symbol string
	Price  float64
	Time   time.Time
}

func (q Quote) Valid() bool {
	return q.Symbol != "" && q.Price > 0 && !math.IsInf(q.Price, 0) && !math.IsNaN(q.Price)
}

// PriceStore keeps the latest quote per symbol. It is safe for concurrent
// use and implements QuoteSupplier.
type PriceStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewPriceStore() *PriceStore {
	return &PriceStore{quotes: make(map[string]Quote)}
}

// Set stores q, replacing any older quote for the symbol. Invalid quotes
// and quotes older than the stored one are dropped.
func (ps *PriceStore) Set(q Quote) error {
	if !q.Valid() {
		return fmt.Errorf("bad quote %s=%v", q.Symbol, q.Price)
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if cur, ok := ps.quotes[q.Symbol]; ok && q.Time.Before(cur.Time) {
		return nil
	}
	ps.quotes[q.Symbol] = q
	return nil
}

func (ps *PriceStore) Get(symbol string) (Quote, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	q, ok := ps.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	return q, nil
}

func (ps *PriceStore) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q, err := ps.Get(symbol)
	if err != nil {
		return 0, err
	}
	return q.Price, nil
}

// Snapshot returns symbol -> price for every stored quote.
func (ps *PriceStore) Snapshot() map[string]float64 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make(map[string]float64, len(ps.quotes))
	for s, q := range ps.quotes {
		out[s] = q.Price
	}
	return out
}

// Symbols returns the quoted symbols in sorted order.
func (ps *PriceStore) Symbols() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]string, 0, len(ps.quotes))
	for s := range ps.quotes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Prices fetches a price for each symbol from qs. Symbols that fail are
// reported in the returned error map and left out of prices.
func Prices(ctx context.Context, qs QuoteSupplier, symbols []string) (map[string]float64, map[string]error) {
	prices := make(map[string]float64, len(symbols))
	var errs map[string]error
	for _, s := range symbols {
		p, err := qs.GetPrice(ctx, s)
		if err != nil {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[s] = err
			continue
		}
		prices[s] = p
	}
	return prices, errs
}
