package app

import (
	"context"
	"net/http"
	"time"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/deletion"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/events"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/remote"
	"github.com/tphakala/audio-annotator/internal/workspace"
)

// Session is a workspace on the headless engine bound to the remote store
type Session struct {
	Workspace *workspace.Workspace
	Engine    *engine.Memory
	Remote    *remote.Client
	Queue     *deletion.Queue
}

// SessionOption customizes NewSession
type SessionOption func(*remote.Config)

// WithTransport sends store requests through rt
func WithTransport(rt http.RoundTripper) SessionOption {
	return func(c *remote.Config) { c.Transport = rt }
}

// NewSession wires a workspace to the store at settings.Remote. Changes,
// loads and saves are published on the bus of svc.
func NewSession(settings *conf.Settings, svc *Services, opts ...SessionOption) (*Session, error) {
	cfg := remote.Config{
		BaseURL:   settings.Remote.BaseURL,
		Timeout:   settings.Remote.Timeout,
		UserAgent: settings.Remote.UserAgent,
		Retries:   settings.Remote.Retries,
		Observe:   svc.Metrics.Store.ObserveRequest,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := remote.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	queue := deletion.NewQueue(client, deletion.Config{
		QueueSize:      settings.Deletion.QueueSize,
		Workers:        settings.Deletion.Workers,
		RateLimit:      settings.Deletion.RateLimit,
		Burst:          settings.Deletion.Burst,
		DedupeTTL:      settings.Deletion.DedupeTTL,
		RequestTimeout: settings.Remote.Timeout,
	}, deletion.WithObserver(svc.Metrics.Annotator))

	eng := engine.NewMemory()
	ws := workspace.New(eng, client, queue)

	ws.OnAnnotationsChange(func(records []annotation.Record) {
		task, _ := ws.Task()
		svc.TryPublish(events.AnnotationsChanged{TaskID: task.ID, Records: records, At: time.Now()})
	})
	ws.OnSaved(func(s workspace.SaveSummary) {
		task, _ := ws.Task()
		svc.TryPublish(events.TaskSaved{
			TaskID:    s.TaskID,
			AudioFile: task.AudioFile,
			Status:    s.Status,
			Sent:      s.Sent,
			Withheld:  s.Withheld,
			At:        time.Now(),
		})
	})

	return &Session{Workspace: ws, Engine: eng, Remote: client, Queue: queue}, nil
}

// Load fetches and hydrates a task and announces it on the bus
func (s *Session) Load(ctx context.Context, svc *Services, taskID annotation.ID) error {
	report, err := s.Workspace.Load(ctx, taskID)
	if err != nil {
		return err
	}
	svc.TryPublish(events.TaskLoaded{
		TaskID:   taskID,
		Hydrated: report.Hydrated,
		Skipped:  len(report.Skipped),
		At:       time.Now(),
	})
	return nil
}

// Close tears the workspace down and drains pending remote deletes
func (s *Session) Close(timeout time.Duration) {
	s.Workspace.Close()
	if err := s.Queue.Shutdown(timeout); err != nil {
		logger.Global().Module("app").Warn("deletion queue did not drain", logger.Error(err))
	}
	s.Remote.Close()
}
