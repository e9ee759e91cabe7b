package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/deletion"
)

// AnnotatorMetrics tracks the annotation list, remote deletes, hydration and saves
type AnnotatorMetrics struct {
	AnnotationsCurrent prometheus.Gauge
	AnnotationsLabeled prometheus.Gauge
	ChangesTotal       prometheus.Counter

	deletesTotal   *prometheus.CounterVec
	deleteDuration prometheus.Histogram

	hydratedTotal prometheus.Counter
	skippedTotal  prometheus.Counter

	savesTotal    *prometheus.CounterVec
	withheldTotal prometheus.Counter
}

// NewAnnotatorMetrics creates the collectors and registers them on registry
func NewAnnotatorMetrics(registry prometheus.Registerer) (*AnnotatorMetrics, error) {
	m := &AnnotatorMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register annotator metrics: %w", err)
	}
	return m, nil
}

func (m *AnnotatorMetrics) initMetrics() {
	m.AnnotationsCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "annotator_annotations_current",
		Help: "Number of regions in the last emitted annotation list",
	})
	m.AnnotationsLabeled = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "annotator_annotations_labeled",
		Help: "Number of labeled regions in the last emitted annotation list",
	})
	m.ChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_changes_total",
		Help: "Total number of emitted annotation lists",
	})
	m.deletesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "annotator_remote_deletes_total",
		Help: "Remote delete commands by outcome",
	}, []string{"outcome"})
	m.deleteDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "annotator_remote_delete_duration_seconds",
		Help:    "Duration of remote delete requests",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
	})
	m.hydratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_hydrated_regions_total",
		Help: "Stored annotations materialized as regions",
	})
	m.skippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_hydration_skipped_total",
		Help: "Stored annotations skipped as malformed during hydration",
	})
	m.savesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "annotator_saves_total",
		Help: "Annotation list saves by task status",
	}, []string{"status"})
	m.withheldTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "annotator_save_withheld_total",
		Help: "Unlabeled regions withheld from saves",
	})
}

// ObserveDelete records one remote delete command
func (m *AnnotatorMetrics) ObserveDelete(outcome deletion.Outcome, duration time.Duration) {
	m.deletesTotal.WithLabelValues(string(outcome)).Inc()
	switch outcome {
	case deletion.OutcomeSuccess, deletion.OutcomeNotFound, deletion.OutcomeError:
		m.deleteDuration.Observe(duration.Seconds())
	}
}

// ObserveAnnotations records an emitted annotation list
func (m *AnnotatorMetrics) ObserveAnnotations(records []annotation.Record) {
	labeled := 0
	for _, r := range records {
		if r.Labeled() {
			labeled++
		}
	}
	m.ChangesTotal.Inc()
	m.AnnotationsCurrent.Set(float64(len(records)))
	m.AnnotationsLabeled.Set(float64(labeled))
}

// ObserveHydration records the result of loading a task
func (m *AnnotatorMetrics) ObserveHydration(hydrated, skipped int) {
	m.hydratedTotal.Add(float64(hydrated))
	m.skippedTotal.Add(float64(skipped))
}

// ObserveSave records a save with the task status it set
func (m *AnnotatorMetrics) ObserveSave(status annotation.Status, withheld int) {
	label := string(status)
	if label == "" {
		label = unknownLabel
	}
	m.savesTotal.WithLabelValues(label).Inc()
	m.withheldTotal.Add(float64(withheld))
}

// Describe implements prometheus.Collector
func (m *AnnotatorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.AnnotationsCurrent.Describe(ch)
	m.AnnotationsLabeled.Describe(ch)
	m.ChangesTotal.Describe(ch)
	m.deletesTotal.Describe(ch)
	m.deleteDuration.Describe(ch)
	m.hydratedTotal.Describe(ch)
	m.skippedTotal.Describe(ch)
	m.savesTotal.Describe(ch)
	m.withheldTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *AnnotatorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.AnnotationsCurrent.Collect(ch)
	m.AnnotationsLabeled.Collect(ch)
	m.ChangesTotal.Collect(ch)
	m.deletesTotal.Collect(ch)
	m.deleteDuration.Collect(ch)
	m.hydratedTotal.Collect(ch)
	m.skippedTotal.Collect(ch)
	m.savesTotal.Collect(ch)
	m.withheldTotal.Collect(ch)
}
