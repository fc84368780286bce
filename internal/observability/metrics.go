// Package observability wires the Prometheus registry of a recorder process.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/threshcorder/internal/logger"
	"github.com/tphakala/threshcorder/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Session  *metrics.SessionMetrics
	Sinks    *metrics.SinkMetrics
}

// NewMetrics creates a registry with process and Go runtime collectors and
// the collectors of the given session.
func NewMetrics(source metrics.StatusSource) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	sessionMetrics, err := metrics.NewSessionMetrics(registry, source)
	if err != nil {
		return nil, fmt.Errorf("failed to create session metrics: %w", err)
	}

	sinkMetrics, err := metrics.NewSinkMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Session:  sessionMetrics,
		Sinks:    sinkMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      handlerLog{},
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// handlerLog routes promhttp errors to the application log.
type handlerLog struct{}

func (handlerLog) Println(v ...any) {
	logger.Global().Module("metrics").Error("metrics handler error",
		logger.String("error", fmt.Sprint(v...)))
}
