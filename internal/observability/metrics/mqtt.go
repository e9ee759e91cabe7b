package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MQTTMetrics tracks the annotation change publisher
type MQTTMetrics struct {
	ConnectionStatus  prometheus.Gauge
	MessagesDelivered prometheus.Counter
	Errors            prometheus.Counter
	MessageSize       prometheus.Histogram
	PublishLatency    prometheus.Histogram
}

// NewMQTTMetrics creates and registers the MQTT collectors
func NewMQTTMetrics(registry prometheus.Registerer) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		ConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "annotator_mqtt_connection_status",
			Help: "MQTT connection status, 1 when connected",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_mqtt_messages_delivered_total",
			Help: "MQTT messages delivered",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_mqtt_errors_total",
			Help: "MQTT connect and publish errors",
		}),
		MessageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "annotator_mqtt_message_size_bytes",
			Help:    "Size of published MQTT payloads",
			Buckets: prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
		}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "annotator_mqtt_publish_latency_seconds",
			Help:    "Latency of MQTT publishes",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		}),
	}
	for _, c := range []prometheus.Collector{m.ConnectionStatus, m.MessagesDelivered, m.Errors, m.MessageSize, m.PublishLatency} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
		}
	}
	return m, nil
}

// UpdateConnectionStatus sets the connection gauge
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.ConnectionStatus.Set(1)
		return
	}
	m.ConnectionStatus.Set(0)
}

// Connected reads the connection gauge back
func (m *MQTTMetrics) Connected() bool {
	metric := &dto.Metric{}
	if err := m.ConnectionStatus.Write(metric); err != nil {
		return false
	}
	return metric.GetGauge().GetValue() == 1
}

// ObservePublish records a successful publish
func (m *MQTTMetrics) ObservePublish(size int, latency time.Duration) {
	m.MessagesDelivered.Inc()
	m.MessageSize.Observe(float64(size))
	m.PublishLatency.Observe(latency.Seconds())
}

// IncrementErrors counts a failed connect or publish
func (m *MQTTMetrics) IncrementErrors() {
	m.Errors.Inc()
}
