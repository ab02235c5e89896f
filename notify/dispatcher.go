// Package notify moves engine events off the engine's critical section and
// fans them out to handlers: the journal, logs, webhooks and metrics.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskdesk/risk"
)

// Handler consumes one event. Errors are logged by the dispatcher and never
// reach the engine.
type Handler interface {
	Handle(ctx context.Context, ev risk.Event) error
}

type HandlerFunc func(ctx context.Context, ev risk.Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev risk.Event) error { return f(ctx, ev) }

type namedHandler struct {
	name       string
	h          Handler
	bestEffort bool
}

type queued struct {
	ev risk.Event
	// full is set when the event arrived past the queue limit; best-effort
	// handlers skip it.
	full bool
}

// Dispatcher is a risk.EventSink backed by an in-memory queue. Publish only
// appends; deliveries are serialized and follow publish order.
type Dispatcher struct {
	log   *zap.Logger
	limit int

	flushMu sync.Mutex

	mu       sync.Mutex
	queue    []queued
	handlers []namedHandler
	dropped  int
	wake     chan struct{}
}

var _ risk.EventSink = (*Dispatcher)(nil)

type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithQueueLimit caps the events pending for best-effort handlers. Events
// published while that many are pending are still delivered to the other
// handlers but skipped, and counted, for best-effort ones. 0 means
// unbounded.
func WithQueueLimit(n int) Option {
	return func(d *Dispatcher) { d.limit = n }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:  zap.NewNop(),
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a handler that receives every event. Handlers run in
// registration order.
func (d *Dispatcher) Register(name string, h Handler) {
	d.register(namedHandler{name: name, h: h})
}

// RegisterBestEffort adds a handler that may miss events when the queue is
// over its limit, such as a rate-limited webhook.
func (d *Dispatcher) RegisterBestEffort(name string, h Handler) {
	d.register(namedHandler{name: name, h: h, bestEffort: true})
}

func (d *Dispatcher) register(nh namedHandler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, nh)
	d.mu.Unlock()
}

func (d *Dispatcher) Publish(ev risk.Event) {
	d.mu.Lock()
	full := d.limit > 0 && d.pendingBestEffortLocked() >= d.limit
	if full {
		d.dropped++
	}
	d.queue = append(d.queue, queued{ev: ev, full: full})
	d.mu.Unlock()

	if full {
		d.log.Warn("queue full: best-effort handlers skip event",
			zap.String("kind", string(ev.Kind)),
			zap.String("symbol", ev.Position.Symbol),
		)
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) pendingBestEffortLocked() int {
	n := 0
	for _, q := range d.queue {
		if !q.full {
			n++
		}
	}
	return n
}

// Dropped returns how many events best-effort handlers skipped because the
// queue was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Run delivers events until ctx is done, then drains what is left with a
// background context so closes are not lost on shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.Flush(context.Background())
			return nil
		case <-d.wake:
			d.Flush(ctx)
		}
	}
}

// Flush synchronously delivers every queued event.
func (d *Dispatcher) Flush(ctx context.Context) {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		handlers := append([]namedHandler(nil), d.handlers...)
		d.mu.Unlock()

		for _, q := range batch {
			d.deliver(ctx, handlers, q)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, handlers []namedHandler, q queued) {
	ev := q.ev
	for _, nh := range handlers {
		if nh.bestEffort && q.full {
			continue
		}
		if err := nh.h.Handle(ctx, ev); err != nil {
			d.log.Error("event handler failed",
				zap.String("handler", nh.name),
				zap.String("kind", string(ev.Kind)),
				zap.String("symbol", ev.Position.Symbol),
				zap.String("id", ev.Position.ID),
				zap.Error(err),
			)
		}
	}
}
