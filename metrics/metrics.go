// Package metrics exposes engine activity as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/riskdesk/risk"
)

const namespace = "riskdesk"

type Metrics struct {
	reg *prometheus.Registry

	OpenPositions  prometheus.Gauge
	DailyTrades    prometheus.Gauge
	RealizedPnL    prometheus.Gauge
	UnrealizedPnL  prometheus.Gauge
	Opened         *prometheus.CounterVec
	Closed         *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	TradePnL       prometheus.Histogram
	LoopIterations *prometheus.CounterVec
	QuoteErrors    *prometheus.CounterVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Open positions in the ledger.",
		}),
		DailyTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_trades",
			Help:      "Positions opened since the last daily reset.",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_realized_pnl",
			Help:      "Realized PnL since the last daily reset.",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unrealized_pnl",
			Help:      "Unrealized PnL of open positions.",
		}),
		Opened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_opened_total",
			Help:      "Positions opened.",
		}, []string{"symbol", "side"}),
		Closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Positions closed, by close reason.",
		}, []string{"reason"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "open_rejections_total",
			Help:      "Entries refused by the risk gate, by reason.",
		}, []string{"reason"}),
		TradePnL: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trade_pnl_percent",
			Help:      "Net PnL percent of closed positions.",
			Buckets:   prometheus.LinearBuckets(-10, 1, 21),
		}),
		LoopIterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_iterations_total",
			Help:      "Scheduler iterations, by loop.",
		}, []string{"loop"}),
		QuoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_errors_total",
			Help:      "Failed quote lookups, by symbol.",
		}, []string{"symbol"}),
	}
	m.reg.MustRegister(
		m.OpenPositions, m.DailyTrades, m.RealizedPnL, m.UnrealizedPnL,
		m.Opened, m.Closed, m.Rejections, m.TradePnL,
		m.LoopIterations, m.QuoteErrors,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Handle counts lifecycle events. It satisfies notify.Handler.
func (m *Metrics) Handle(_ context.Context, ev risk.Event) error {
	p := ev.Position
	switch ev.Kind {
	case risk.EventOpened:
		m.Opened.WithLabelValues(p.Symbol, string(p.Side)).Inc()
	case risk.EventClosed:
		m.Closed.WithLabelValues(ev.Reason).Inc()
		m.TradePnL.Observe(p.PnLPercent)
	}
	return nil
}

func (m *Metrics) ObserveSummary(s risk.PortfolioSummary) {
	m.OpenPositions.Set(float64(s.OpenPositions))
	m.DailyTrades.Set(float64(s.DailyTrades))
	m.RealizedPnL.Set(s.DailyRealizedPnL)
	m.UnrealizedPnL.Set(s.UnrealizedPnL)
}

// ObserveRejection counts a gate refusal. Variable detail such as
// "(42s remaining)" is dropped to keep label cardinality bounded.
func (m *Metrics) ObserveRejection(reason string) {
	m.Rejections.WithLabelValues(reasonLabel(reason)).Inc()
}

func (m *Metrics) LoopTick(loop string) {
	m.LoopIterations.WithLabelValues(loop).Inc()
}

func (m *Metrics) QuoteError(symbol string) {
	m.QuoteErrors.WithLabelValues(symbol).Inc()
}

func reasonLabel(reason string) string {
	if i := strings.Index(reason, " ("); i >= 0 {
		reason = reason[:i]
	}
	if strings.HasPrefix(reason, "correlation group ") {
		return "correlation group full"
	}
	return reason
}
