// Package observability exposes Prometheus instrumentation for a running
// backtest: candle-processing throughput, open-position gauges, and a
// counter per signal emitted by the detector and per order opened or
// closed. Each Collector owns a private prometheus.Registry, so more than
// one backtest run in the same process never collides on metric names.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics a Driver run reports into.
type Collector struct {
	registry *prometheus.Registry

	CandlesProcessed prometheus.Counter
	SignalsEmitted   *prometheus.CounterVec
	OrdersOpened     *prometheus.CounterVec
	OrdersClosed     *prometheus.CounterVec
	OpenPositions    prometheus.Gauge
	AccountEquity    prometheus.Gauge
	RunDuration      prometheus.Histogram
}

// NewCollector builds a Collector registered against a fresh registry, so
// multiple backtest runs in the same process don't collide on metric names.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		CandlesProcessed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "backtest_candles_processed_total",
			Help: "Low-timeframe candles processed by the driver loop.",
		}),
		SignalsEmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_signals_emitted_total",
			Help: "Signals emitted by the detector, labeled by PST level and kind.",
		}, []string{"level", "kind"}),
		OrdersOpened: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_orders_opened_total",
			Help: "Orders opened by the advisor, labeled by strategy and position type.",
		}, []string{"strategy", "position_type"}),
		OrdersClosed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_orders_closed_total",
			Help: "Positions closed via a CLOSE action, labeled by position type.",
		}, []string{"position_type"}),
		OpenPositions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "backtest_open_positions",
			Help: "Currently open positions on the account.",
		}),
		AccountEquity: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "backtest_equity",
			Help: "Current account equity including unrealized P&L.",
		}),
		RunDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "backtest_duration_seconds",
			Help:    "Wall-clock duration of a full Driver.Run call.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	return c
}

// Handler returns an http.Handler serving this collector's metrics in the
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SignalEmitted increments the signal counter for the given PST level/kind.
func (c *Collector) SignalEmitted(level, kind string) {
	c.SignalsEmitted.WithLabelValues(level, kind).Inc()
}

// OrderOpened increments the order-opened counter for the given strategy
// and position type.
func (c *Collector) OrderOpened(strategy, positionType string) {
	c.OrdersOpened.WithLabelValues(strategy, positionType).Inc()
}

// OrderClosed increments the order-closed counter for the given position type.
func (c *Collector) OrderClosed(positionType string) {
	c.OrdersClosed.WithLabelValues(positionType).Inc()
}
