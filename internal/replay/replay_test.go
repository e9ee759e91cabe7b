package replay

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/testutil"
	"github.com/tphakala/audio-annotator/internal/workspace"
)

type saveStore struct {
	mu    sync.Mutex
	saved []annotation.SaveRequest
}

func (s *saveStore) Task(context.Context, annotation.ID) (annotation.Task, error) {
	return annotation.Task{}, errors.NewStd("not used")
}

func (s *saveStore) TaskAnnotations(context.Context, annotation.ID) (annotation.TaskAnnotations, error) {
	return annotation.TaskAnnotations{}, errors.NewStd("not used")
}

func (s *saveStore) SaveAnnotations(_ context.Context, _ annotation.ID, req annotation.SaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, req)
	return nil
}

func newRunner(t *testing.T) (*Runner, *saveStore) {
	t.Helper()
	eng := engine.NewMemory()
	store := &saveStore{}
	ws := workspace.New(eng, store, nil)
	_, err := ws.LoadLocal(annotation.Task{ID: 7, ProjectID: 1}, annotation.TaskAnnotations{
		Labels: testutil.Labels(),
		Annotations: []annotation.Persisted{
			{ID: 102, Record: annotation.Record{StartTime: 3, EndTime: 4, ModelLabel: "bird"}},
		},
	})
	require.NoError(t, err)
	return NewRunner(ws, eng), store
}

const editScript = `
task: 7
steps:
  - action: create
    ref: a
    start: 1
    end: 2
  - action: label
    label: dog
  - action: attribute
    attribute: loudness
    value: LOUD
  - action: drag
    ref: a
    start: 1.25
    end: 2.5
  - action: commit
  - action: click
    annotation: 102
  - action: label
    label: Bird
  - action: commit
  - action: create
    ref: b
    start: 5
    end: 6
  - action: delete
save: completed
`

func TestRun_EditScript(t *testing.T) {
	r, store := newRunner(t)
	script, err := ParseScript([]byte(editScript))
	require.NoError(t, err)
	assert.Equal(t, annotation.ID(7), script.Task)
	assert.Equal(t, string(annotation.StatusCompleted), script.Save)

	res, err := r.Run(t.Context(), script)
	require.NoError(t, err)
	assert.Equal(t, len(script.Steps), res.Applied)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Records, 2)

	byLabel := map[annotation.ID]annotation.Record{}
	for _, rec := range res.Records {
		byLabel[rec.LabelID] = rec
	}
	dog := byLabel[testutil.LabelDog]
	assert.InDelta(t, 1.25, dog.StartTime, 1e-9)
	assert.InDelta(t, 2.5, dog.EndTime, 1e-9)
	assert.Equal(t, []annotation.AttributeValue{{AttributeID: testutil.AttrDogLoudness, ValueID: testutil.ValueLoud}}, dog.Attributes)

	bird := byLabel[testutil.LabelBird]
	assert.Equal(t, "bird", bird.ModelLabel)
	assert.True(t, bird.IsModelGenerated)

	require.NotNil(t, res.Saved)
	assert.Equal(t, annotation.StatusCompleted, res.Saved.Status)
	require.Len(t, store.saved, 1)
	assert.Len(t, store.saved[0].Annotations, 2)
}

func TestRun_StopsOnFirstError(t *testing.T) {
	r, _ := newRunner(t)
	script, err := ParseScript([]byte(`
steps:
  - action: create
    start: 0
    end: 1
  - action: commit
  - action: label
    label: Dog
`))
	require.NoError(t, err)

	res, err := r.Run(t.Context(), script)
	require.Error(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Failed)
}

func TestRun_ContinueOnError(t *testing.T) {
	r, _ := newRunner(t)
	script, err := ParseScript([]byte(`
continue_on_error: true
steps:
  - action: create
    start: 0
    end: 1
  - action: label
    label: Whale
  - action: attribute
    attribute: call
    value: song
  - action: label
    label: Noise
  - action: commit
`))
	require.NoError(t, err)

	res, err := r.Run(t.Context(), script)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 3, res.Applied)
	assert.Len(t, res.Records, 2)
}

func TestParseScript_Validation(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"unknown action", "steps: [{action: zoom}]"},
		{"bad create bounds", "steps: [{action: create, start: 2, end: 1}]"},
		{"undefined ref", "steps: [{action: open, ref: x}]"},
		{"missing target", "steps: [{action: drag, start: 0, end: 1}]"},
		{"duplicate ref", "steps: [{action: create, ref: a, start: 0, end: 1}, {action: create, ref: a, start: 1, end: 2}]"},
		{"missing label", "steps: [{action: label}]"},
		{"clear without attribute", "steps: [{action: clear}]"},
		{"bad save status", "save: archived"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScript([]byte(tt.script))
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}

	_, err := ParseScript([]byte("steps: ["))
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestRun_ClearAttribute(t *testing.T) {
	r, _ := newRunner(t)
	script, err := ParseScript([]byte(`
steps:
  - action: create
    start: 1
    end: 2
  - action: label
    label: dog
  - action: attribute
    attribute: loudness
    value: loud
  - action: attribute
    attribute: distance
    value: near
  - action: clear
    attribute: Loudness
  - action: commit
`))
	require.NoError(t, err)

	res, err := r.Run(t.Context(), script)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	dog := res.Records[1]
	assert.Equal(t, testutil.LabelDog, dog.LabelID)
	assert.Equal(t, []annotation.AttributeValue{{AttributeID: testutil.AttrDogDistance, ValueID: testutil.ValueNear}}, dog.Attributes)
}
