package engine

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audio-annotator/internal/errors"
)

func sequentialIDs() MemoryOption {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("r%d", n)
	})
}

func TestMemory_AddRegionDoesNotFireCreated(t *testing.T) {
	m := NewMemory(sequentialIDs())
	fired := 0
	m.OnRegionCreated(func(Region) { fired++ })

	r, err := m.AddRegion(1, 2.5, PendingStyle)
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
	assert.Zero(t, fired)

	_, err = m.Draw(3, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Len(t, m.Regions(), 2)
}

func TestMemory_DefaultIDsAreUnique(t *testing.T) {
	m := NewMemory()
	a, err := m.AddRegion(0, 1, PendingStyle)
	require.NoError(t, err)
	b, err := m.AddRegion(0, 1, PendingStyle)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestMemory_ClickAndDrag(t *testing.T) {
	m := NewMemory(sequentialIDs())
	var clicked []string
	m.OnRegionClicked(func(r Region) { clicked = append(clicked, r.ID) })

	r, err := m.AddRegion(1, 2, PendingStyle)
	require.NoError(t, err)

	require.NoError(t, m.Click(r.ID))
	assert.Equal(t, []string{"r1"}, clicked)

	require.NoError(t, m.Drag(r.ID, 1.5, 3))
	got, ok := m.Region(r.ID)
	require.True(t, ok)
	assert.InDelta(t, 1.5, got.Start, 1e-9)
	assert.InDelta(t, 1.5, got.Duration(), 1e-9)

	assert.ErrorIs(t, m.Click("missing"), ErrUnknownRegion)
	assert.Error(t, m.Drag(r.ID, 3, 1))
}

func TestMemory_RemoveAndRecolor(t *testing.T) {
	m := NewMemory(sequentialIDs())
	r, err := m.AddRegion(0, 1, PendingStyle)
	require.NoError(t, err)

	require.NoError(t, m.SetOptions(r.ID, LabeledStyle))
	got, _ := m.Region(r.ID)
	assert.Equal(t, LabeledColor, got.Style.Color)

	require.NoError(t, m.RemoveRegion(r.ID))
	_, ok := m.Region(r.ID)
	assert.False(t, ok)

	err = m.RemoveRegion(r.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Error(t, m.SetOptions(r.ID, PendingStyle))
}

func TestValidateSpan(t *testing.T) {
	assert.NoError(t, ValidateSpan(0, 0.1))
	assert.Error(t, ValidateSpan(-1, 1))
	assert.Error(t, ValidateSpan(2, 2))
	assert.Error(t, ValidateSpan(math.NaN(), 1))
	assert.Error(t, ValidateSpan(0, math.Inf(1)))
}

func TestMemory_Clear(t *testing.T) {
	m := NewMemory()
	_, err := m.AddRegion(0, 1, PendingStyle)
	require.NoError(t, err)
	m.Clear()
	assert.Empty(t, m.Regions())
}
