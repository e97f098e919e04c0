package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics of few-shot training
type Metrics struct {
	// Episode metrics, labeled by tag (train, val)
	Loss     *prometheus.GaugeVec
	Accuracy *prometheus.GaugeVec
	Episodes *prometheus.CounterVec

	// Optimization metrics
	Steps        prometheus.Counter
	StepDuration prometheus.Histogram

	// Validation metrics
	BestAccuracy prometheus.Gauge
	Checkpoints  prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Loss: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "musicfsl_loss",
			Help: "Cross-entropy loss of the last episode",
		}, []string{"tag"}),
		Accuracy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "musicfsl_accuracy",
			Help: "Query accuracy of the last episode",
		}, []string{"tag"}),
		Episodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "musicfsl_episodes_total",
			Help: "Total number of episodes evaluated",
		}, []string{"tag"}),

		Steps: f.NewCounter(prometheus.CounterOpts{
			Name: "musicfsl_optimizer_steps_total",
			Help: "Total number of optimizer steps",
		}),
		StepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "musicfsl_step_duration_seconds",
			Help:    "Time spent on one training episode, forward and backward",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),

		BestAccuracy: f.NewGauge(prometheus.GaugeOpts{
			Name: "musicfsl_best_val_accuracy",
			Help: "Best mean validation accuracy so far",
		}),
		Checkpoints: f.NewCounter(prometheus.CounterOpts{
			Name: "musicfsl_checkpoints_saved_total",
			Help: "Total number of checkpoints written",
		}),
	}
}

// Observe records the outcome of one episode.
func (m *Metrics) Observe(tag string, loss, accuracy float64) {
	if m == nil {
		return
	}
	m.Loss.WithLabelValues(tag).Set(loss)
	m.Accuracy.WithLabelValues(tag).Set(accuracy)
	m.Episodes.WithLabelValues(tag).Inc()
}
