// Package metrics provides Prometheus collectors for the annotation workspace,
// the annotation store client and the MQTT publisher.
package metrics

import "time"

// Histogram bucket layout shared by the collectors
const (
	BucketStart1ms   = 0.001
	BucketStart64B   = 64.0
	BucketFactor2    = 2
	BucketCount10    = 10
	BucketCount12    = 12
	ShutdownTimeout  = 5 * time.Second
	unknownLabel     = "unknown"
	statusLabelError = "error"
)
