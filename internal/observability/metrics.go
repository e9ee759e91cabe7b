// Package observability exposes the Prometheus registry of the annotator and
// the HTTP endpoint serving it.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/audio-annotator/internal/observability/metrics"
)

// Metrics holds every collector of the application on a private registry
type Metrics struct {
	registry  *prometheus.Registry
	Annotator *metrics.AnnotatorMetrics
	Store     *metrics.StoreMetrics
	MQTT      *metrics.MQTTMetrics
}

// NewMetrics creates a registry with process and Go runtime collectors plus
// the annotator collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	annotator, err := metrics.NewAnnotatorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create annotator metrics: %w", err)
	}
	store, err := metrics.NewStoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create store metrics: %w", err)
	}
	mqtt, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Annotator: annotator,
		Store:     store,
		MQTT:      mqtt,
	}, nil
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RegisterHandlers mounts /metrics on mux
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}
