package suggest

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/datastore"
)

const predictions = `
- {start_time: 0, end_time: 1, label: dog, confidence: 0.9}
- {start_time: 1, end_time: 2, label: dog, confidence: 0.8}
- {start_time: 2, end_time: 3, label: bird, confidence: 0.2}
- {start_time: 3, end_time: 4, label: bird, confidence: 0.7}
`

func writePredictions(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(predictions), 0o600))
	return path
}

func TestSuggestPrintsRecords(t *testing.T) {
	cmd := Command(&conf.Settings{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{writePredictions(t)})
	require.NoError(t, cmd.Execute())

	var records []annotation.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "dog", records[0].ModelLabel)
	assert.InDelta(t, 2.0, records[0].EndTime, 1e-9)
	assert.Equal(t, "bird", records[1].ModelLabel)
	assert.False(t, records[1].IsModelGenerated)
}

func TestSuggestThresholdFlag(t *testing.T) {
	cmd := Command(&conf.Settings{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--threshold", "0.85", writePredictions(t)})
	require.NoError(t, cmd.Execute())

	var records []annotation.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "dog", records[0].ModelLabel)
	assert.InDelta(t, 1.0, records[0].EndTime, 1e-9)
}

func TestSuggestAppendsToTask(t *testing.T) {
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "annotations.db")

	store, err := datastore.New(settings)
	require.NoError(t, err)
	_, tasks, err := store.CreateProject(t.Context(), datastore.ProjectInput{
		Name:       "park",
		Labels:     []annotation.Label{{Name: "Dog"}},
		AudioFiles: []string{"park.wav"},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--task", strconv.FormatInt(int64(tasks[0].ID), 10), writePredictions(t)})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "added 2 suggestions")

	stored, err := store.Annotations(t.Context(), tasks[0].ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "dog", stored[0].ModelLabel)
	require.NoError(t, store.Close())
}
