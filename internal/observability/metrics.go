package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TurnsTotal        *prometheus.CounterVec
	TurnLatency       prometheus.Histogram
	ContextMessages   prometheus.Histogram
	Compactions       *prometheus.CounterVec
	ProviderRequests  *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	WritebackDepth    prometheus.Gauge
	WritebackFailures *prometheus.CounterVec
	RecallResults     prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed conversational turns by outcome.",
		}, []string{"outcome"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "Wall time of a full turn (assembly + provider call) in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
		ContextMessages: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_messages",
			Help:      "Number of messages in the assembled provider context.",
			Buckets:   []float64{2, 5, 10, 15, 23, 30, 50, 75},
		}),
		Compactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Transcript compactions by outcome.",
		}, []string{"outcome"}),
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Upstream provider requests by provider.",
		}, []string{"provider"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Upstream provider errors by provider and kind.",
		}, []string{"provider", "kind"}),
		WritebackDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "writeback_queue_depth",
			Help:      "Writeback jobs queued but not yet finished.",
		}),
		WritebackFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writeback_step_failures_total",
			Help:      "Failed writeback steps by step name.",
		}, []string{"step"}),
		RecallResults: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recall_results",
			Help:      "Number of semantically recalled turns per query.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
	}
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
