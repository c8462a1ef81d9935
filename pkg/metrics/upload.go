package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UploadMetrics records upload queue activity.
type UploadMetrics struct {
	attempts     *prometheus.CounterVec
	passDuration prometheus.Histogram
	queueDepth   prometheus.Gauge
	online       prometheus.Gauge
}

// NewUploadMetrics registers the upload queue metrics on reg. A nil
// registerer yields a no-op recorder.
func NewUploadMetrics(reg prometheus.Registerer) *UploadMetrics {
	if reg == nil {
		return &UploadMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upload_attempts_total",
		Help:      "Draft delivery attempts by content type and outcome.",
	}, []string{"content_type", "outcome"})
	passDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upload_pass_duration_seconds",
		Help:      "Duration of upload queue passes in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "upload_queue_depth",
		Help:      "Drafts eligible for delivery at the start of the last pass.",
	})
	online := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "remote_online",
		Help:      "1 when the content API was reachable at the last check.",
	})
	reg.MustRegister(attempts, passDuration, queueDepth, online)
	return &UploadMetrics{
		attempts:     attempts,
		passDuration: passDuration,
		queueDepth:   queueDepth,
		online:       online,
	}
}

// IncAttempt counts one delivery attempt.
func (m *UploadMetrics) IncAttempt(contentType, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(contentType), normalizeLabel(outcome)).Inc()
}

func (m *UploadMetrics) ObservePass(duration time.Duration) {
	if m == nil || m.passDuration == nil {
		return
	}
	m.passDuration.Observe(duration.Seconds())
}

func (m *UploadMetrics) SetQueueDepth(n int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetOnline records the latest connectivity observation.
func (m *UploadMetrics) SetOnline(online bool) {
	if m == nil || m.online == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}
