package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes pipeline counters on a private registry. All methods are
// safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	framesAnalyzed     prometheus.Counter
	frameFailures      prometheus.Counter
	frameRetries       prometheus.Counter
	diversityFallbacks prometheus.Counter
	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_analyzed_total",
			Help:      "Frames whose vision analysis succeeded",
		}),
		frameFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_failures_total",
			Help:      "Frames that exhausted every analysis attempt",
		}),
		frameRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_retries_total",
			Help:      "Vision analysis attempts that were retried",
		}),
		diversityFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diversity_fallbacks_total",
			Help:      "Diversity scores replaced by the all-zero fallback",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full pipeline run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.framesAnalyzed,
		m.frameFailures,
		m.frameRetries,
		m.diversityFallbacks,
		m.runsTotal,
		m.runDuration,
	)

	return m
}

func (m *Metrics) FrameAnalyzed() {
	if m == nil {
		return
	}
	m.framesAnalyzed.Inc()
}

func (m *Metrics) FrameFailed() {
	if m == nil {
		return
	}
	m.frameFailures.Inc()
}

func (m *Metrics) FrameRetried() {
	if m == nil {
		return
	}
	m.frameRetries.Inc()
}

func (m *Metrics) DiversityFallback() {
	if m == nil {
		return
	}
	m.diversityFallbacks.Inc()
}

// RunFinished records one pipeline run
func (m *Metrics) RunFinished(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
