package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks requests made to the annotation store
type StoreMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewStoreMetrics creates and registers the store client collectors
func NewStoreMetrics(registry prometheus.Registerer) (*StoreMetrics, error) {
	m := &StoreMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_store_requests_total",
			Help: "Requests sent to the annotation store by method and status code",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "annotator_store_request_duration_seconds",
			Help:    "Annotation store request latency",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		}, []string{"method"}),
	}
	for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDuration} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register store metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveRequest matches the after-response hook of the HTTP client
func (m *StoreMetrics) ObserveRequest(req *http.Request, resp *http.Response, duration time.Duration, err error) {
	method := unknownLabel
	if req != nil {
		method = req.Method
	}
	status := statusLabelError
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	m.requestsTotal.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
