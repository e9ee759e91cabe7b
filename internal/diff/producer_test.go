package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/registry"
	"github.com/tphakala/audio-annotator/internal/taxonomy"
	"github.com/tphakala/audio-annotator/internal/testutil"
)

func setup(t *testing.T) (*registry.Registry, *engine.Memory, *Producer) {
	t.Helper()
	tax, err := taxonomy.New(testutil.Labels())
	require.NoError(t, err)
	reg := registry.New(tax)
	eng := engine.NewMemory()
	return reg, eng, New(reg, eng)
}

func TestRecords_ReadsGeometryFresh(t *testing.T) {
	reg, eng, p := setup(t)

	r, err := eng.AddRegion(1, 2, engine.PendingStyle)
	require.NoError(t, err)
	edit := registry.Empty()
	edit.LabelID = testutil.LabelBird
	edit.AttributeValues[testutil.AttrBirdCall] = testutil.ValueSong
	reg.Upsert(r.ID, edit)

	require.NoError(t, eng.Drag(r.ID, 1.25, 4))

	records := p.Records()
	require.Len(t, records, 1)
	assert.InDelta(t, 1.25, records[0].StartTime, 1e-9)
	assert.InDelta(t, 4.0, records[0].EndTime, 1e-9)
	assert.Equal(t, testutil.LabelBird, records[0].LabelID)
	assert.Equal(t, []annotation.AttributeValue{{AttributeID: testutil.AttrBirdCall, ValueID: testutil.ValueSong}}, records[0].Attributes)
}

func TestRecords_KeepsUnlabeledPlaceholders(t *testing.T) {
	reg, eng, p := setup(t)

	r, err := eng.AddRegion(0, 1, engine.PendingStyle)
	require.NoError(t, err)
	reg.Upsert(r.ID, registry.Empty())

	records := p.Records()
	require.Len(t, records, 1)
	assert.False(t, records[0].Labeled())
	assert.NotNil(t, records[0].Attributes)
	assert.Empty(t, records[0].Attributes)
}

func TestRecords_PrunesEntriesWithoutRegion(t *testing.T) {
	reg, eng, p := setup(t)

	kept, err := eng.AddRegion(0, 1, engine.PendingStyle)
	require.NoError(t, err)
	reg.Upsert(kept.ID, registry.Empty())
	reg.Upsert("ghost", registry.Empty())

	records := p.Records()
	assert.Len(t, records, 1)
	assert.Equal(t, reg.Len(), len(records))
	assert.Equal(t, []string{kept.ID}, reg.Keys())
}

func TestEmit_NotifiesEverySubscriber(t *testing.T) {
	reg, eng, p := setup(t)

	var first, second [][]annotation.Record
	p.OnAnnotationsChange(func(r []annotation.Record) { first = append(first, r) })
	p.OnAnnotationsChange(func(r []annotation.Record) { second = append(second, r) })
	p.OnAnnotationsChange(nil)

	r, err := eng.AddRegion(0, 1, engine.PendingStyle)
	require.NoError(t, err)
	reg.Upsert(r.ID, registry.Empty())

	out := p.Emit()
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, out, first[0])

	// Subscribers receive independent slices
	first[0][0].StartTime = 99
	assert.InDelta(t, 0.0, second[0][0].StartTime, 1e-9)
}
