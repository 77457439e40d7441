package oracle

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vadiminshakov/tradeledger/internal/domain"
)

type Metrics struct {
	UpstreamRequests *prometheus.CounterVec
	Served           *prometheus.CounterVec
	StreamMessages   *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_upstream_requests_total",
				Help: "Upstream price requests by operation and result.",
			},
			[]string{"op", "result"},
		),
		Served: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_prices_served_total",
				Help: "Prices served by provenance.",
			},
			[]string{"provenance"},
		),
		StreamMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_stream_messages_total",
				Help: "Push stream messages by result.",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(m.UpstreamRequests, m.Served, m.StreamMessages)
	return m
}

func (m *Metrics) upstream(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.UpstreamRequests.WithLabelValues(op, result).Inc()
}

func (m *Metrics) served(p domain.Provenance) {
	if m == nil {
		return
	}
	m.Served.WithLabelValues(string(p)).Inc()
}

func (m *Metrics) streamMessage(result string) {
	if m == nil {
		return
	}
	m.StreamMessages.WithLabelValues(result).Inc()
}
