package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/deletion"
	"github.com/tphakala/audio-annotator/internal/diff"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/registry"
	"github.com/tphakala/audio-annotator/internal/taxonomy"
	"github.com/tphakala/audio-annotator/internal/testutil"
)

type recordingDeleter struct {
	regions []string
	inner   *deletion.Coordinator
}

func (d *recordingDeleter) Delete(regionID string) deletion.Result {
	d.regions = append(d.regions, regionID)
	return d.inner.Delete(regionID)
}

type harness struct {
	reg     *registry.Registry
	eng     *engine.Memory
	ctrl    *Controller
	deleter *recordingDeleter
	emitted [][]annotation.Record
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tax, err := taxonomy.New(testutil.Labels())
	require.NoError(t, err)

	h := &harness{reg: registry.New(tax), eng: engine.NewMemory()}
	prod := diff.New(h.reg, h.eng)
	prod.OnAnnotationsChange(func(r []annotation.Record) { h.emitted = append(h.emitted, r) })
	// No remote queue, deletes stay local
	h.deleter = &recordingDeleter{inner: deletion.NewCoordinator(h.reg, h.eng, nil, prod)}
	h.ctrl = New(h.reg, h.eng, h.deleter, prod)
	return h
}

func (h *harness) draw(t *testing.T) string {
	t.Helper()
	r, err := h.eng.Draw(1, 2)
	require.NoError(t, err)
	h.reg.Upsert(r.ID, registry.Empty())
	return r.ID
}

func TestOpen_RejectsSecondSession(t *testing.T) {
	h := newHarness(t)
	a, b := h.draw(t), h.draw(t)

	require.NoError(t, h.ctrl.Open(a))
	err := h.ctrl.Open(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionOpen)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Equal(t, a, h.ctrl.RegionID())
}

func TestOperationsRequireOpenSession(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.ctrl.SelectLabel(testutil.LabelDog), ErrNoSession)
	assert.ErrorIs(t, h.ctrl.SelectAttribute(testutil.AttrDogLoudness, testutil.ValueLoud), ErrNoSession)
	assert.ErrorIs(t, h.ctrl.Commit(), ErrNoSession)
	_, err := h.ctrl.Delete()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.NotPanics(t, h.ctrl.Cancel)
}

func TestOpen_LoadsExistingEdit(t *testing.T) {
	h := newHarness(t)
	id := h.draw(t)
	edit := registry.Empty()
	edit.LabelID = testutil.LabelDog
	edit.AttributeValues[testutil.AttrDogDistance] = testutil.ValueNear
	h.reg.Upsert(id, edit)

	require.NoError(t, h.ctrl.Open(id))
	assert.Equal(t, Open, h.ctrl.State())
	assert.Equal(t, testutil.LabelDog, h.ctrl.SelectedLabel())
	assert.Equal(t, map[annotation.ID]annotation.ID{testutil.AttrDogDistance: testutil.ValueNear}, h.ctrl.SelectedAttributes())
}

func TestSelectLabel_ScenarioE(t *testing.T) {
	h := newHarness(t)
	id := h.draw(t)
	require.NoError(t, h.ctrl.Open(id))

	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelDog))
	require.NoError(t, h.ctrl.SelectAttribute(testutil.AttrDogLoudness, testutil.ValueLoud))
	require.NotEmpty(t, h.ctrl.SelectedAttributes())

	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelBird))
	assert.Empty(t, h.ctrl.SelectedAttributes())
}

func TestSelectLabel_SameLabelKeepsAttributes(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Open(h.draw(t)))
	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelDog))
	require.NoError(t, h.ctrl.SelectAttribute(testutil.AttrDogLoudness, testutil.ValueQuiet))

	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelDog))
	assert.Len(t, h.ctrl.SelectedAttributes(), 1)
}

func TestAttributeScopingAcrossTransitions(t *testing.T) {
	h := newHarness(t)
	tax := h.reg.Taxonomy()
	require.NoError(t, h.ctrl.Open(h.draw(t)))

	fill := func(label annotation.ID) {
		for _, attr := range tax.MustAttributesOf(label) {
			require.NoError(t, h.ctrl.SelectAttribute(attr.ID, tax.MustValuesOf(attr.ID)[0].ID))
		}
	}

	labels := []annotation.ID{testutil.LabelDog, testutil.LabelBird, testutil.LabelNoise, testutil.LabelDog, 0, testutil.LabelBird}
	for _, label := range labels {
		require.NoError(t, h.ctrl.SelectLabel(label))
		for attrID := range h.ctrl.SelectedAttributes() {
			assert.True(t, tax.OwnsAttribute(label, attrID), "attribute %d leaked into label %d", attrID, label)
		}
		if label.Valid() {
			fill(label)
		}
	}
}

func TestSelectAttribute_Validated(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.Open(h.draw(t)))

	err := h.ctrl.SelectAttribute(testutil.AttrDogLoudness, testutil.ValueLoud)
	assert.ErrorIs(t, err, ErrLabelRequired)

	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelBird))
	err = h.ctrl.SelectAttribute(testutil.AttrDogLoudness, testutil.ValueLoud)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	err = h.ctrl.SelectLabel(404)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, testutil.LabelBird, h.ctrl.SelectedLabel())
}

func TestCommit_WithoutLabelStaysOpen(t *testing.T) {
	h := newHarness(t)
	id := h.draw(t)
	require.NoError(t, h.ctrl.Open(id))

	err := h.ctrl.Commit()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLabelRequired)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	assert.Equal(t, Open, h.ctrl.State())
	assert.Equal(t, registry.Empty(), h.reg.Get(id))
	assert.Empty(t, h.emitted)
	region, _ := h.eng.Region(id)
	assert.Equal(t, engine.PendingStyle, region.Style)
}

func TestCommit_ScenarioB(t *testing.T) {
	h := newHarness(t)
	id := h.draw(t)
	require.NoError(t, h.ctrl.Open(id))
	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelDog))

	require.NoError(t, h.ctrl.Commit())

	assert.Equal(t, Idle, h.ctrl.State())
	require.Len(t, h.emitted, 1)
	require.Len(t, h.emitted[0], 1)
	rec := h.emitted[0][0]
	assert.Equal(t, testutil.LabelDog, rec.LabelID)
	assert.Equal(t, []annotation.AttributeValue{}, rec.Attributes)
	assert.False(t, rec.IsModelGenerated)

	region, _ := h.eng.Region(id)
	assert.Equal(t, engine.LabeledStyle, region.Style)
}

func TestCommit_ScenarioC(t *testing.T) {
	h := newHarness(t)
	report := h.reg.HydrateFrom([]annotation.Persisted{
		{ID: 12, Record: annotation.Record{StartTime: 0.5, EndTime: 1.5, ModelLabel: "dog_bark"}},
	}, h.eng)
	require.Equal(t, 1, report.Hydrated)
	id := h.reg.Keys()[0]

	require.NoError(t, h.ctrl.Open(id))
	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelBird))
	require.NoError(t, h.ctrl.Commit())

	edit := h.reg.Get(id)
	assert.Equal(t, annotation.ID(12), edit.AnnotationID)
	assert.Equal(t, "dog_bark", edit.ModelLabel)
	assert.True(t, edit.IsModelGenerated)

	rec := h.emitted[0][0]
	assert.Equal(t, "dog_bark", rec.ModelLabel)
	assert.True(t, rec.IsModelGenerated)
	assert.Equal(t, testutil.LabelBird, rec.LabelID)
}

func TestModelFlagIsMonotonic(t *testing.T) {
	h := newHarness(t)
	h.reg.HydrateFrom([]annotation.Persisted{
		{ID: 1, Record: annotation.Record{StartTime: 0, EndTime: 1, ModelLabel: "siren"}},
	}, h.eng)
	id := h.reg.Keys()[0]

	flags := []bool{h.reg.Get(id).IsModelGenerated}
	for _, label := range []annotation.ID{testutil.LabelDog, testutil.LabelNoise, testutil.LabelBird} {
		require.NoError(t, h.ctrl.Open(id))
		require.NoError(t, h.ctrl.SelectLabel(label))
		require.NoError(t, h.ctrl.Commit())
		flags = append(flags, h.reg.Get(id).IsModelGenerated)
	}

	assert.Equal(t, []bool{false, true, true, true}, flags)
	assert.Equal(t, "siren", h.reg.Get(id).ModelLabel)
}

func TestCommit_PreservesAnnotationID(t *testing.T) {
	h := newHarness(t)
	h.reg.HydrateFrom([]annotation.Persisted{
		{ID: 7, Record: annotation.Record{StartTime: 1, EndTime: 2.5, LabelID: testutil.LabelDog}},
	}, h.eng)
	id := h.reg.Keys()[0]

	require.NoError(t, h.ctrl.Open(id))
	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelBird))
	require.NoError(t, h.ctrl.SelectAttribute(testutil.AttrBirdCall, testutil.ValueAlarm))
	require.NoError(t, h.ctrl.Commit())

	edit := h.reg.Get(id)
	assert.Equal(t, annotation.ID(7), edit.AnnotationID)
	assert.False(t, edit.IsModelGenerated)
	assert.Equal(t, map[annotation.ID]annotation.ID{testutil.AttrBirdCall: testutil.ValueAlarm}, edit.AttributeValues)
}

func TestCancel_LeavesRegistryUntouched(t *testing.T) {
	h := newHarness(t)
	id := h.draw(t)
	require.NoError(t, h.ctrl.Open(id))
	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelDog))

	h.ctrl.Cancel()

	assert.Equal(t, Idle, h.ctrl.State())
	assert.False(t, h.reg.Get(id).Labeled())
	assert.Empty(t, h.emitted)
	require.NoError(t, h.ctrl.Open(id))
}

func TestDelete_ReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	id := h.draw(t)
	require.NoError(t, h.ctrl.Open(id))

	_, err := h.ctrl.Delete()
	require.NoError(t, err)

	assert.Equal(t, Idle, h.ctrl.State())
	assert.Equal(t, []string{id}, h.deleter.regions)
	assert.Zero(t, h.reg.Len())
	require.Len(t, h.emitted, 1)
	assert.Empty(t, h.emitted[0])
}

func TestClearAttribute(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.ctrl.ClearAttribute(testutil.AttrDogLoudness), ErrNoSession)

	require.NoError(t, h.ctrl.Open(h.draw(t)))
	require.NoError(t, h.ctrl.SelectLabel(testutil.LabelDog))
	require.NoError(t, h.ctrl.SelectAttribute(testutil.AttrDogLoudness, testutil.ValueLoud))
	require.NoError(t, h.ctrl.SelectAttribute(testutil.AttrDogDistance, testutil.ValueNear))

	require.NoError(t, h.ctrl.ClearAttribute(testutil.AttrDogLoudness))
	require.NoError(t, h.ctrl.ClearAttribute(testutil.AttrBirdCall))
	assert.Equal(t, map[annotation.ID]annotation.ID{testutil.AttrDogDistance: testutil.ValueNear}, h.ctrl.SelectedAttributes())
}
