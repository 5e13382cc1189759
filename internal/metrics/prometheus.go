// internal/metrics/prometheus.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Verdicts          *prometheus.CounterVec
	FailOpen          *prometheus.CounterVec
	RepositoryLatency prometheus.Histogram
	CacheLookups      *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	EventsDropped     prometheus.Counter
	WebSocketClients  prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "State validation verdicts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		FailOpen: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fail_open_total",
			Help:      "Validations allowed because the issued license store failed",
		}, []string{"state"}),
		RepositoryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_lookup_seconds",
			Help:      "Time taken to fetch candidate issued licenses",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_cache_lookups_total",
			Help:      "Candidate cache lookups by result",
		}, []string{"result"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_published_total",
			Help:      "Change events published by type",
		}, []string{"type"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_dropped_total",
			Help:      "Change events dropped because a subscriber queue was full",
		}),
		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients",
		}),
	}
}

func (m *Metrics) ObserveVerdict(strategy, outcome string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) ObserveFailOpen(state string) {
	if m == nil {
		return
	}
	m.FailOpen.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveLookup(d time.Duration) {
	if m == nil {
		return
	}
	m.RepositoryLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveDrop() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.WebSocketClients.Set(float64(n))
}
