package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	epochs        prometheus.Counter
	epochDuration prometheus.Histogram
	epochFailures *prometheus.CounterVec
	running       prometheus.Gauge
	lastEstimate  *prometheus.GaugeVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the FinCast collectors on reg. Pass
// prometheus.DefaultRegisterer to expose them on /metrics.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		epochs: f.NewCounter(prometheus.CounterOpts{
			Name: "fincast_training_epochs_total",
			Help: "Total number of completed training epochs",
		}),
		epochDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fincast_training_epoch_duration_seconds",
			Help:    "Duration of one training epoch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		epochFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_training_epoch_failures_total",
				Help: "Total number of aborted training epochs",
			},
			[]string{"kind"},
		),
		running: f.NewGauge(prometheus.GaugeOpts{
			Name: "fincast_training_running",
			Help: "1 while a training run is active",
		}),
		lastEstimate: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fincast_last_estimate",
				Help: "Last estimate produced for an output channel",
			},
			[]string{"channel"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEpoch records a completed epoch and its duration.
func (r *Recorder) RecordEpoch(seconds float64) {
	r.epochs.Inc()
	r.epochDuration.Observe(seconds)
}

// RecordEpochFailure records an aborted epoch.
func (r *Recorder) RecordEpochFailure(kind string) {
	r.epochFailures.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetTrainingRunning(running bool) {
	if running {
		r.running.Set(1)
		return
	}
	r.running.Set(0)
}

func (r *Recorder) RecordEstimate(channel string, value float64) {
	r.lastEstimate.WithLabelValues(channel).Set(value)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordEpoch(float64)            {}
func (Noop) RecordEpochFailure(string)      {}
func (Noop) SetTrainingRunning(bool)        {}
func (Noop) RecordEstimate(string, float64) {}
func (Noop) RecordError(string)             {}
func (Noop) RecordLatency(string, float64)  {}
