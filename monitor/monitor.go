// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the round collectors on a private registry, so several
// instances can coexist in one process.
type Metrics struct {
	registry         *prometheus.Registry
	ConnectedPlayers prometheus.Gauge
	Intents          *prometheus.CounterVec
	RoundsCompleted  prometheus.Counter
	IntentLatency    prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		ConnectedPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_players",
			Help:      "Number of occupied alice/eve/bob slots",
		}),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Round commands processed, by intent and outcome",
		}, []string{"intent", "outcome"}),
		RoundsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_completed_total",
			Help:      "Rounds that reached the complete phase",
		}),
		IntentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intent_latency_seconds",
			Help:      "Time from command submission to reply",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.ConnectedPlayers,
		m.Intents,
		m.RoundsCompleted,
		m.IntentLatency,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveIntent(intent, outcome string, took time.Duration) {
	m.Intents.WithLabelValues(intent, outcome).Inc()
	m.IntentLatency.Observe(took.Seconds())
}

func (m *Metrics) SetConnectedPlayers(n int) {
	m.ConnectedPlayers.Set(float64(n))
}

func (m *Metrics) IncRoundsCompleted() {
	m.RoundsCompleted.Inc()
}
