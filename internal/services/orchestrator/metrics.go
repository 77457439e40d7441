package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

type Metrics struct {
	Orders            *prometheus.CounterVec
	OrderLatency      *prometheus.HistogramVec
	ConsistencyAlerts prometheus.Counter
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_total",
				Help: "Orders processed by side, route and outcome.",
			},
			[]string{"side", "route", "status"},
		),
		OrderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "order_latency_seconds",
				Help:    "Order processing latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ConsistencyAlerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "consistency_alerts_total",
				Help: "Trades confirmed on chain that the journal failed to record.",
			},
		),
	}

	registry.MustRegister(m.Orders, m.OrderLatency, m.ConsistencyAlerts)
	return m
}

func (m *Metrics) observeOrder(side domain.TradeType, route domain.Route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(string(side), string(route), status).Inc()
	m.OrderLatency.WithLabelValues(string(route)).Observe(d.Seconds())
}

func (m *Metrics) alert() {
	if m == nil {
		return
	}
	m.ConsistencyAlerts.Inc()
}
