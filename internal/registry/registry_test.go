package registry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/taxonomy"
	"github.com/tphakala/audio-annotator/internal/testutil"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	tax, err := taxonomy.New(testutil.Labels())
	require.NoError(t, err)
	return New(tax)
}

func persisted(id annotation.ID, start, end float64, label annotation.ID, pairs ...annotation.AttributeValue) annotation.Persisted {
	return annotation.Persisted{
		ID: id,
		Record: annotation.Record{
			StartTime:  start,
			EndTime:    end,
			LabelID:    label,
			Attributes: pairs,
		},
	}
}

func TestGet_ReturnsEmptyDefault(t *testing.T) {
	reg := newRegistry(t)

	edit := reg.Get("nope")
	assert.False(t, edit.Persisted())
	assert.False(t, edit.Labeled())
	assert.NotNil(t, edit.AttributeValues)
	assert.Empty(t, edit.AttributeValues)

	_, ok := reg.Lookup("nope")
	assert.False(t, ok)
}

func TestUpsert_StoresCopies(t *testing.T) {
	reg := newRegistry(t)

	edit := Empty()
	edit.LabelID = testutil.LabelDog
	edit.AttributeValues[testutil.AttrDogLoudness] = testutil.ValueLoud
	reg.Upsert("r1", edit)

	edit.AttributeValues[testutil.AttrDogDistance] = testutil.ValueFar
	got := reg.Get("r1")
	assert.Len(t, got.AttributeValues, 1)

	got.AttributeValues[testutil.AttrDogDistance] = testutil.ValueNear
	assert.Len(t, reg.Get("r1").AttributeValues, 1)
}

func TestKeys_InsertionOrder(t *testing.T) {
	reg := newRegistry(t)
	reg.Upsert("b", Empty())
	reg.Upsert("a", Empty())
	reg.Upsert("c", Empty())
	reg.Upsert("b", Empty())

	assert.Equal(t, []string{"b", "a", "c"}, reg.Keys())

	reg.Remove("a")
	reg.Remove("missing")
	assert.Equal(t, []string{"b", "c"}, reg.Keys())
	assert.Equal(t, 2, reg.Len())
}

func TestHydrateFrom_ScenarioA(t *testing.T) {
	reg := newRegistry(t)
	eng := engine.NewMemory()

	report := reg.HydrateFrom([]annotation.Persisted{
		persisted(7, 1.0, 2.5, testutil.LabelDog,
			annotation.AttributeValue{AttributeID: testutil.AttrDogLoudness, ValueID: testutil.ValueLoud}),
	}, eng)

	assert.Equal(t, 1, report.Hydrated)
	assert.Empty(t, report.Skipped)
	require.Equal(t, 1, reg.Len())

	regionID := reg.Keys()[0]
	edit := reg.Get(regionID)
	assert.Equal(t, annotation.ID(7), edit.AnnotationID)
	assert.Equal(t, testutil.LabelDog, edit.LabelID)
	assert.Equal(t, map[annotation.ID]annotation.ID{testutil.AttrDogLoudness: testutil.ValueLoud}, edit.AttributeValues)

	region, ok := eng.Region(regionID)
	require.True(t, ok)
	assert.InDelta(t, 1.0, region.Start, 1e-9)
	assert.InDelta(t, 2.5, region.End, 1e-9)
	assert.Equal(t, engine.LabeledStyle, region.Style)
}

func TestHydrateFrom_IdentityProperty(t *testing.T) {
	reg := newRegistry(t)
	eng := engine.NewMemory()

	records := []annotation.Persisted{
		persisted(1, 0, 1, testutil.LabelDog,
			annotation.AttributeValue{AttributeID: testutil.AttrDogLoudness, ValueID: testutil.ValueQuiet},
			annotation.AttributeValue{AttributeID: testutil.AttrDogDistance, ValueID: testutil.ValueFar}),
		persisted(2, 1, 2, testutil.LabelBird,
			annotation.AttributeValue{AttributeID: testutil.AttrBirdCall, ValueID: testutil.ValueAlarm}),
		persisted(3, 2, 3, testutil.LabelNoise),
		{ID: 4, Record: annotation.Record{StartTime: 3, EndTime: 4, ModelLabel: "dog_bark"}},
	}

	report := reg.HydrateFrom(records, eng)
	require.Equal(t, len(records), report.Hydrated)

	for i, regionID := range reg.Keys() {
		src := records[i]
		edit := reg.Get(regionID)
		assert.Equal(t, src.ID, edit.AnnotationID)
		assert.Equal(t, src.LabelID, edit.LabelID)
		assert.Equal(t, src.ModelLabel, edit.ModelLabel)
		assert.ElementsMatch(t, src.Attributes, edit.AttributePairs(), "pairs of annotation %d", src.ID)
		assert.False(t, edit.IsModelGenerated)
	}

	suggested, ok := reg.FindByAnnotation(4)
	require.True(t, ok)
	region, _ := eng.Region(suggested)
	assert.Equal(t, engine.PendingStyle, region.Style)
}

func TestHydrateFrom_SkipsMalformedRecords(t *testing.T) {
	reg := newRegistry(t)
	eng := engine.NewMemory()

	records := []annotation.Persisted{
		persisted(1, 0, 1, testutil.LabelDog),
		persisted(2, math.NaN(), 1, testutil.LabelDog),
		persisted(3, 2, 1, testutil.LabelDog),
		persisted(4, 0, 1, 99),
		persisted(5, 0, 1, testutil.LabelBird,
			annotation.AttributeValue{AttributeID: testutil.AttrDogLoudness, ValueID: testutil.ValueLoud}),
		persisted(6, 0, 1, testutil.LabelDog,
			annotation.AttributeValue{AttributeID: testutil.AttrDogLoudness, ValueID: testutil.ValueSong}),
		persisted(1, 4, 5, testutil.LabelDog),
		persisted(0, 4, 5, testutil.LabelDog),
		persisted(7, 0, 1, 0,
			annotation.AttributeValue{AttributeID: testutil.AttrDogLoudness, ValueID: testutil.ValueLoud}),
		persisted(8, 5, 6, testutil.LabelNoise),
	}

	report := reg.HydrateFrom(records, eng)

	assert.Equal(t, 2, report.Hydrated)
	require.Len(t, report.Skipped, 8)
	for _, s := range report.Skipped {
		assert.True(t, errors.IsCategory(s.Err, errors.CategoryHydration), "annotation %d: %v", s.AnnotationID, s.Err)
	}
	assert.Equal(t, 2, reg.Len())
	assert.Len(t, eng.Regions(), 2)
}

type failingAllocator struct{}

func (failingAllocator) AddRegion(float64, float64, engine.Style) (engine.Region, error) {
	return engine.Region{}, errors.NewStd("engine not ready")
}

func TestHydrateFrom_AllocatorFailureSkipsRecord(t *testing.T) {
	reg := newRegistry(t)

	report := reg.HydrateFrom([]annotation.Persisted{persisted(1, 0, 1, testutil.LabelDog)}, failingAllocator{})

	assert.Zero(t, report.Hydrated)
	require.Len(t, report.Skipped, 1)
	assert.True(t, errors.IsCategory(report.Skipped[0].Err, errors.CategoryRendering))
	assert.Zero(t, reg.Len())
	assert.True(t, reg.Hydrated())
}

func TestHydrateFrom_OneShotUntilReset(t *testing.T) {
	reg := newRegistry(t)
	eng := engine.NewMemory()
	records := []annotation.Persisted{persisted(7, 1, 2, testutil.LabelDog)}

	first := reg.HydrateFrom(records, eng)
	require.Equal(t, 1, first.Hydrated)

	second := reg.HydrateFrom(records, eng)
	assert.True(t, second.AlreadyHydrated)
	assert.Equal(t, 1, reg.Len())
	assert.Len(t, eng.Regions(), 1)

	// An empty registry does not re-arm hydration, only Reset does
	reg.Remove(reg.Keys()[0])
	assert.True(t, reg.HydrateFrom(records, eng).AlreadyHydrated)

	reg.Reset(nil)
	eng.Clear()
	assert.False(t, reg.Hydrated())
	assert.Equal(t, 1, reg.HydrateFrom(records, eng).Hydrated)
}

func TestAttributePairs_SortedByAttribute(t *testing.T) {
	edit := Empty()
	edit.AttributeValues[testutil.AttrDogDistance] = testutil.ValueNear
	edit.AttributeValues[testutil.AttrDogLoudness] = testutil.ValueLoud

	assert.Equal(t, []annotation.AttributeValue{
		{AttributeID: testutil.AttrDogLoudness, ValueID: testutil.ValueLoud},
		{AttributeID: testutil.AttrDogDistance, ValueID: testutil.ValueNear},
	}, edit.AttributePairs())
}

func TestReset_SwapsTaxonomy(t *testing.T) {
	reg := New(nil)
	assert.False(t, reg.Taxonomy().HasLabel(testutil.LabelDog))

	tax, err := taxonomy.New(testutil.Labels())
	require.NoError(t, err)
	reg.Reset(tax)
	assert.True(t, reg.Taxonomy().HasLabel(testutil.LabelDog))

	reg.Reset(nil)
	assert.Same(t, tax, reg.Taxonomy())
}
