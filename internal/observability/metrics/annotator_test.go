package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/deletion"
)

func TestObserveDelete(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewAnnotatorMetrics(registry)
	require.NoError(t, err)

	m.ObserveDelete(deletion.OutcomeSuccess, 20*time.Millisecond)
	m.ObserveDelete(deletion.OutcomeSuccess, 30*time.Millisecond)
	m.ObserveDelete(deletion.OutcomeNotFound, 10*time.Millisecond)
	m.ObserveDelete(deletion.OutcomeDuplicate, 0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.deletesTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.deletesTotal.WithLabelValues("not_found")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.deletesTotal.WithLabelValues("duplicate")), 0)
	// Duplicates never reach the store and are not timed
	metric := &dto.Metric{}
	require.NoError(t, m.deleteDuration.Write(metric))
	assert.Equal(t, uint64(3), metric.GetHistogram().GetSampleCount())
}

func TestObserveAnnotations(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewAnnotatorMetrics(registry)
	require.NoError(t, err)

	m.ObserveAnnotations([]annotation.Record{
		{StartTime: 0, EndTime: 1, LabelID: 3},
		{StartTime: 1, EndTime: 2},
		{StartTime: 2, EndTime: 3, LabelID: 5},
	})
	m.ObserveAnnotations([]annotation.Record{{StartTime: 0, EndTime: 1, LabelID: 3}})

	assert.InDelta(t, 1, testutil.ToFloat64(m.AnnotationsCurrent), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.AnnotationsLabeled), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ChangesTotal), 0)
}

func TestObserveHydrationAndSave(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewAnnotatorMetrics(registry)
	require.NoError(t, err)

	m.ObserveHydration(4, 1)
	m.ObserveSave(annotation.StatusCompleted, 2)
	m.ObserveSave("", 0)

	assert.InDelta(t, 4, testutil.ToFloat64(m.hydratedTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.skippedTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.savesTotal.WithLabelValues("Completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.savesTotal.WithLabelValues(unknownLabel)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.withheldTotal), 0)
}

func TestDoubleRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewAnnotatorMetrics(registry)
	require.NoError(t, err)
	_, err = NewAnnotatorMetrics(registry)
	require.Error(t, err)
}

func TestStoreMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewStoreMetrics(registry)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodDelete, "http://store.test/annotations/1/", http.NoBody)
	require.NoError(t, err)

	m.ObserveRequest(req, &http.Response{StatusCode: http.StatusNoContent}, 5*time.Millisecond, nil)
	m.ObserveRequest(req, nil, time.Millisecond, assert.AnError)

	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("DELETE", "204")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("DELETE", statusLabelError)), 0)
}

func TestMQTTMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	assert.False(t, m.Connected())
	m.UpdateConnectionStatus(true)
	assert.True(t, m.Connected())

	m.ObservePublish(512, 3*time.Millisecond)
	m.IncrementErrors()
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesDelivered), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors), 0)
}
