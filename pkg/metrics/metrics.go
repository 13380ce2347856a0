package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "live_session"

// Metrics prometheus collectors of the coordinator, nil receiver is a no-op
type Metrics struct {
	intents    *prometheus.CounterVec
	bids       *prometheus.CounterVec
	ledgerOps  *prometheus.CounterVec
	refunds    *prometheus.CounterVec
	alerts     *prometheus.CounterVec
	published  *prometheus.CounterVec
	wsSessions prometheus.Gauge
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global registry
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNewMetrics build and register the collectors, panics on duplicate registration
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "intents_total",
			Help:      "Client intents handled, by intent and outcome code.",
		}, []string{"intent", "outcome"}),
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auction",
			Name:      "bids_total",
			Help:      "Bids processed by outcome.",
		}, []string{"outcome"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by entry kind and outcome.",
		}, []string{"kind", "outcome"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "refunds_total",
			Help:      "Refund credits by outcome.",
		}, []string{"outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "alerts_total",
			Help:      "Operational alerts raised for outstanding money.",
		}, []string{"kind"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventbus",
			Name:      "events_published_total",
			Help:      "Session events published by kind and outcome.",
		}, []string{"kind", "outcome"}),
		wsSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		}),
	}
	reg.MustRegister(m.intents, m.bids, m.ledgerOps, m.refunds, m.alerts, m.published, m.wsSessions)
	return m
}

// Intent count a handled client intent
func (m *Metrics) Intent(intent, outcome string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(intent, outcome).Inc()
}

// Bid count a processed bid
func (m *Metrics) Bid(outcome string) {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(outcome).Inc()
}

// LedgerOp count a ledger operation
func (m *Metrics) LedgerOp(kind, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.WithLabelValues(kind, outcome).Inc()
}

// Refund count refund credits
func (m *Metrics) Refund(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.refunds.WithLabelValues(outcome).Add(float64(n))
}

// Alert count an operational alert
func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

// Published count a publish attempt
func (m *Metrics) Published(kind, outcome string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(kind, outcome).Inc()
}

// ConnOpened ws connection opened
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.wsSessions.Inc()
}

// ConnClosed ws connection closed
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.wsSessions.Dec()
}
