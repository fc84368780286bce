package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SinkMetrics implements Recorder for the episode sinks (catalogue, MQTT,
// archive upload, retention).
type SinkMetrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Errors     *prometheus.CounterVec
}

// NewSinkMetrics creates and registers the sink metrics.
func NewSinkMetrics(registry *prometheus.Registry) (*SinkMetrics, error) {
	m := &SinkMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threshcorder_sink_operations_total",
			Help: "Episode sink operations by outcome",
		}, []string{"operation", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "threshcorder_sink_operation_duration_seconds",
			Help:    "Duration of episode sink operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		}, []string{"operation"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threshcorder_sink_errors_by_type_total",
			Help: "Failed episode sink operations by error category",
		}, []string{"operation", "error_type"}),
	}

	for _, c := range []prometheus.Collector{m.Operations, m.Duration, m.Errors} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register sink metrics: %w", err)
		}
	}
	return m, nil
}

// RecordOperation implements Recorder.
func (m *SinkMetrics) RecordOperation(operation, status string) {
	m.Operations.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *SinkMetrics) RecordDuration(operation string, seconds float64) {
	m.Duration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *SinkMetrics) RecordError(operation, errorType string) {
	m.Errors.WithLabelValues(operation, errorType).Inc()
}
