package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/datastore"
	"github.com/tphakala/audio-annotator/internal/events"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) TryPublish(e events.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return true
}

// countingStore counts taxonomy lookups of the wrapped store
type countingStore struct {
	*datastore.Store
	mu         sync.Mutex
	labelLoads int
}

func (s *countingStore) ProjectLabels(ctx context.Context, id annotation.ID) ([]annotation.Label, error) {
	s.mu.Lock()
	s.labelLoads++
	s.mu.Unlock()
	return s.Store.ProjectLabels(ctx, id)
}

type testEnv struct {
	e       *echo.Echo
	store   *countingStore
	pub     *capturePublisher
	project annotation.Project
	tasks   []annotation.Task
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ds, err := datastore.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	project, tasks, err := ds.CreateProject(t.Context(), datastore.ProjectInput{
		Name: "Park",
		Labels: []annotation.Label{
			{Name: "Dog", Attributes: []annotation.Attribute{{Name: "loudness", Values: []annotation.Value{{Value: "loud"}}}}},
		},
		AudioFiles: []string{"clip.wav"},
	})
	require.NoError(t, err)

	env := &testEnv{
		e:       echo.New(),
		store:   &countingStore{Store: ds},
		pub:     &capturePublisher{},
		project: project,
		tasks:   tasks,
	}
	_, err = New(env.e, env.store, &conf.WebServerSettings{MediaURL: "http://media.test/audio"}, WithPublisher(env.pub))
	require.NoError(t, err)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(echo.New(), nil, nil)
	require.Error(t, err)
}

func TestGetTask(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/task/1/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	task := decode[annotation.Task](t, rec)
	assert.Equal(t, "clip.wav", task.AudioFile)
	assert.Equal(t, "http://media.test/audio/clip.wav", task.AudioURL)
	assert.Equal(t, annotation.StatusNew, task.Status)

	rec = env.do(t, http.MethodGet, "/api/task/99/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errBody := decode[ErrorResponse](t, rec)
	assert.NotEmpty(t, errBody.Error)
	assert.NotEmpty(t, errBody.CorrelationID)

	rec = env.do(t, http.MethodGet, "/api/task/abc/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveThenLoadAnnotations(t *testing.T) {
	env := newTestEnv(t)
	dog := env.project.Labels[0]
	body := `{"annotations":[` +
		`{"start_time":0.5,"end_time":1,"label_id":` + itoa(dog.ID) +
		`,"attributes":[{"attribute_id":` + itoa(dog.Attributes[0].ID) + `,"value_id":` + itoa(dog.Attributes[0].Values[0].ID) + `}]},` +
		`{"start_time":2,"end_time":3,"label_id":null,"model_label":"bird","attributes":[]}` +
		`],"status":"completed"}`

	rec := env.do(t, http.MethodPost, "/api/tasks/1/save_annotations/", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Annotations saved successfully"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/tasks/1/annotations/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode[annotation.TaskAnnotations](t, rec)
	require.Len(t, payload.Annotations, 2)
	assert.Equal(t, dog.ID, payload.Annotations[0].LabelID)
	assert.Equal(t, "bird", payload.Annotations[1].ModelLabel)
	require.Len(t, payload.Labels, 1)

	rec = env.do(t, http.MethodGet, "/api/tasks/?status=Completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]annotation.Task](t, rec), 1)

	env.pub.mu.Lock()
	defer env.pub.mu.Unlock()
	require.Len(t, env.pub.events, 1)
	saved, ok := env.pub.events[0].(events.TaskSaved)
	require.True(t, ok)
	assert.Equal(t, annotation.StatusCompleted, saved.Status)
	assert.Equal(t, "clip.wav", saved.AudioFile)
	assert.Equal(t, 2, saved.Sent)
}

func TestSaveAnnotations_Rejects(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"bad status", "/api/tasks/1/save_annotations/", `{"annotations":[],"status":"archived"}`, http.StatusBadRequest},
		{"bad json", "/api/tasks/1/save_annotations/", `{"annotations":[`, http.StatusBadRequest},
		{"foreign label", "/api/tasks/1/save_annotations/", `{"annotations":[{"start_time":0,"end_time":1,"label_id":999,"attributes":[]}]}`, http.StatusBadRequest},
		{"unknown task", "/api/tasks/42/save_annotations/", `{"annotations":[]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
	assert.Empty(t, env.pub.events)
}

func TestDeleteAnnotation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/tasks/1/save_annotations/",
		`{"annotations":[{"start_time":0,"end_time":1,"label_id":null,"model_label":"x","attributes":[]}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.store.Annotations(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	path := "/api/annotations/" + itoa(stored[0].ID) + "/"

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, "").Code)
	rec = env.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLabelsAreCached(t *testing.T) {
	env := newTestEnv(t)
	for range 3 {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/tasks/1/annotations/", "").Code)
	}
	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	assert.Equal(t, 1, env.store.labelLoads)
}

func TestProjects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/projects/create/",
		`{"name":"Harbor","model_type":"beats","labels":[{"name":"Ship","attributes":[]}],"audio_files":["h1.wav","h2.wav"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[CreateProjectResponse](t, rec)
	assert.Equal(t, "Harbor", created.Project.Name)
	assert.Len(t, created.Tasks, 2)

	rec = env.do(t, http.MethodGet, "/api/projects/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]annotation.Project](t, rec), 2)

	rec = env.do(t, http.MethodPost, "/api/projects/create/", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/projects/delete/" + itoa(created.Project.ID) + "/"
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/projects/"+itoa(created.Project.ID)+"/", "").Code)
}

func itoa(id annotation.ID) string { return strconv.FormatInt(int64(id), 10) }
