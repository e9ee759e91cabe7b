package taxonomy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/testutil"
)

func newFixture(t *testing.T) *Taxonomy {
	t.Helper()
	tax, err := New(testutil.Labels())
	require.NoError(t, err)
	return tax
}

func TestAttributesOf_PreservesOrder(t *testing.T) {
	tax := newFixture(t)

	attrs, err := tax.AttributesOf(testutil.LabelDog)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, testutil.AttrDogLoudness, attrs[0].ID)
	assert.Equal(t, testutil.AttrDogDistance, attrs[1].ID)

	values, err := tax.ValuesOf(testutil.AttrBirdCall)
	require.NoError(t, err)
	assert.Equal(t, []annotation.Value{{ID: testutil.ValueSong, Value: "song"}, {ID: testutil.ValueAlarm, Value: "alarm"}}, values)

	none, err := tax.AttributesOf(testutil.LabelNoise)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLookups_UnknownIDsFailFast(t *testing.T) {
	tax := newFixture(t)

	_, err := tax.AttributesOf(99)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	_, err = tax.ValuesOf(99)
	assert.True(t, errors.IsNotFound(err))

	assert.Panics(t, func() { tax.MustAttributesOf(99) })
	assert.Panics(t, func() { tax.MustValuesOf(99) })
	assert.NotPanics(t, func() { tax.MustValuesOf(testutil.AttrDogDistance) })
}

func TestAttributesOf_ReturnsCopy(t *testing.T) {
	tax := newFixture(t)

	attrs := tax.MustAttributesOf(testutil.LabelDog)
	attrs[0].Name = "changed"

	assert.Equal(t, "loudness", tax.MustAttributesOf(testutil.LabelDog)[0].Name)
}

func TestValidateSelection(t *testing.T) {
	tax := newFixture(t)

	tests := []struct {
		name     string
		label    annotation.ID
		attr     annotation.ID
		value    annotation.ID
		wantErr  bool
		category errors.ErrorCategory
	}{
		{"owned triple", testutil.LabelDog, testutil.AttrDogLoudness, testutil.ValueQuiet, false, ""},
		{"unknown label", 42, testutil.AttrDogLoudness, testutil.ValueQuiet, true, errors.CategoryNotFound},
		{"attribute of another label", testutil.LabelBird, testutil.AttrDogLoudness, testutil.ValueQuiet, true, errors.CategoryValidation},
		{"value of another attribute", testutil.LabelDog, testutil.AttrDogLoudness, testutil.ValueFar, true, errors.CategoryValidation},
		{"unknown value", testutil.LabelDog, testutil.AttrDogLoudness, 500, true, errors.CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tax.ValidateSelection(tt.label, tt.attr, tt.value)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category), "got %v", err)
		})
	}
}

func TestLabelByName_CaseInsensitive(t *testing.T) {
	tax := newFixture(t)

	label, ok := tax.LabelByName("  DOG ")
	require.True(t, ok)
	assert.Equal(t, testutil.LabelDog, label.ID)

	_, ok = tax.LabelByName("dog_bark")
	assert.False(t, ok)
}

func TestNew_RejectsInconsistentTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		labels []annotation.Label
	}{
		{"missing label id", []annotation.Label{{Name: "x"}}},
		{"duplicate label id", []annotation.Label{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}}},
		{"shared attribute", []annotation.Label{
			{ID: 1, Attributes: []annotation.Attribute{{ID: 7}}},
			{ID: 2, Attributes: []annotation.Attribute{{ID: 7}}},
		}},
		{"shared value", []annotation.Label{
			{ID: 1, Attributes: []annotation.Attribute{
				{ID: 7, Values: []annotation.Value{{ID: 3}}},
				{ID: 8, Values: []annotation.Value{{ID: 3}}},
			}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.labels)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryTaxonomy))
		})
	}
}

func TestConcurrentReads(t *testing.T) {
	tax := newFixture(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				_, _ = tax.LabelByName("bird")
				_ = tax.OwnsAttribute(testutil.LabelBird, testutil.AttrBirdCall)
			}
		})
	}
	wg.Wait()
}
