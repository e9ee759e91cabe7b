package testutil

import "github.com/tphakala/audio-annotator/internal/annotation"

// Fixture ids used across package tests
const (
	LabelDog   annotation.ID = 3
	LabelBird  annotation.ID = 5
	LabelNoise annotation.ID = 8

	AttrDogLoudness annotation.ID = 1
	AttrDogDistance annotation.ID = 2
	AttrBirdCall    annotation.ID = 4

	ValueLoud  annotation.ID = 9
	ValueQuiet annotation.ID = 10
	ValueNear  annotation.ID = 11
	ValueFar   annotation.ID = 12
	ValueSong  annotation.ID = 13
	ValueAlarm annotation.ID = 14
)

// Labels returns a small taxonomy: dog with two attributes, bird with one
// attribute and noise without attributes.
func Labels() []annotation.Label {
	return []annotation.Label{
		{
			ID:   LabelDog,
			Name: "Dog",
			Attributes: []annotation.Attribute{
				{ID: AttrDogLoudness, Name: "loudness", Values: []annotation.Value{
					{ID: ValueLoud, Value: "loud"},
					{ID: ValueQuiet, Value: "quiet"},
				}},
				{ID: AttrDogDistance, Name: "distance", Values: []annotation.Value{
					{ID: ValueNear, Value: "near"},
					{ID: ValueFar, Value: "far"},
				}},
			},
		},
		{
			ID:   LabelBird,
			Name: "Bird",
			Attributes: []annotation.Attribute{
				{ID: AttrBirdCall, Name: "call type", Values: []annotation.Value{
					{ID: ValueSong, Value: "song"},
					{ID: ValueAlarm, Value: "alarm"},
				}},
			},
		},
		{ID: LabelNoise, Name: "Noise"},
	}
}
