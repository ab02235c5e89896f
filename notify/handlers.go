package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/riskdesk/journal"
	"github.com/rustyeddy/riskdesk/risk"
)

// JournalHandler persists opens and closes. A failed write is returned to
// the dispatcher for logging; the engine's state is unaffected.
func JournalHandler(j journal.Journal) Handler {
	return HandlerFunc(func(_ context.Context, ev risk.Event) error {
		switch ev.Kind {
		case risk.EventOpened:
			return j.RecordOpen(ToTradeRecord(ev.Position))
		case risk.EventClosed:
			return j.RecordClose(ToCloseRecord(ev.Position))
		}
		return nil
	})
}

// LogHandler writes every event at info level.
func LogHandler(l *zap.Logger) Handler {
	return HandlerFunc(func(_ context.Context, ev risk.Event) error {
		l.Info(FormatEvent(ev),
			zap.String("kind", string(ev.Kind)),
			zap.String("id", ev.Position.ID),
			zap.String("symbol", ev.Position.Symbol),
		)
		return nil
	})
}

type webhookPayload struct {
	Text   string  `json:"text"`
	Kind   string  `json:"kind"`
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	PnL    float64 `json:"pnl,omitempty"`
	Reason string  `json:"reason,omitempty"`
	Time   string  `json:"time"`
}

// Webhook posts events as JSON to URL. Messages closer together than
// minInterval are skipped; maxPerHour caps the hourly volume. Both are
// disabled at zero.
type Webhook struct {
	URL    string
	Client *http.Client

	now func() time.Time

	mu       sync.Mutex
	interval *rate.Limiter // nil when disabled
	hourly   *rate.Limiter // nil when disabled
}

func NewWebhook(url string, minInterval time.Duration, maxPerHour int) *Webhook {
	w := &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	if minInterval > 0 {
		w.interval = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	if maxPerHour > 0 {
		w.hourly = rate.NewLimiter(rate.Every(time.Hour/time.Duration(maxPerHour)), maxPerHour)
	}
	return w
}

// allow applies the rate limits and spends a token from each when the
// message may go out.
func (w *Webhook) allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.hourly != nil && w.hourly.TokensAt(now) < 1 {
		return false
	}
	if w.interval != nil && !w.interval.AllowN(now, 1) {
		return false
	}
	if w.hourly != nil {
		w.hourly.AllowN(now, 1)
	}
	return true
}

// ErrRateLimited is returned when a message is skipped by the rate limits.
var ErrRateLimited = errors.New("webhook: rate limited")

func (w *Webhook) Handle(ctx context.Context, ev risk.Event) error {
	if !w.allow() {
		return ErrRateLimited
	}

	p := ev.Position
	payload := webhookPayload{
		Text:   FormatEvent(ev),
		Kind:   string(ev.Kind),
		ID:     p.ID,
		Symbol: p.Symbol,
		Side:   string(p.Side),
		Price:  p.EntryPrice,
		Time:   ev.Time.UTC().Format(time.RFC3339),
	}
	if ev.Kind == risk.EventClosed {
		payload.Price = p.ExitPrice
		payload.PnL = p.PnL
		payload.Reason = ev.Reason
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook post: status %s", resp.Status)
	}
	return nil
}
