package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/events"
	"github.com/tphakala/audio-annotator/internal/logger"
)

const (
	defaultSendTimeout = 15 * time.Second
	// DefaultSuppressWindow is how long a repeated completion of one task stays quiet
	DefaultSuppressWindow = 10 * time.Minute
)

// TaskCompletedNotifier is an event bus consumer that announces tasks saved
// as Completed. Repeated completions of a task within the suppress window
// are announced once.
type TaskCompletedNotifier struct {
	provider Provider
	sent     *cache.Cache
	timeout  time.Duration
	log      logger.Logger
}

// NewTaskCompletedNotifier sends through provider
func NewTaskCompletedNotifier(provider Provider, suppress time.Duration) *TaskCompletedNotifier {
	if suppress <= 0 {
		suppress = DefaultSuppressWindow
	}
	return &TaskCompletedNotifier{
		provider: provider,
		sent:     cache.New(suppress, 2*suppress),
		timeout:  defaultSendTimeout,
		log:      GetLogger(),
	}
}

// Name implements events.Consumer
func (n *TaskCompletedNotifier) Name() string { return "notification" }

// Handle implements events.Consumer
func (n *TaskCompletedNotifier) Handle(event events.Event) error {
	saved, ok := event.(events.TaskSaved)
	if !ok || saved.Status != annotation.StatusCompleted {
		return nil
	}

	key := fmt.Sprintf("task:%d", saved.TaskID)
	if err := n.sent.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		n.log.Debug("completion already announced", logger.Int64("task_id", int64(saved.TaskID)))
		return nil
	}

	msg := Notification{
		Title:   fmt.Sprintf("Task %d completed", saved.TaskID),
		Message: completionMessage(saved),
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.provider.Send(ctx, msg); err != nil {
		// Allow a retry on the next save
		n.sent.Delete(key)
		return err
	}

	n.log.Info("task completion announced",
		logger.Int64("task_id", int64(saved.TaskID)),
		logger.String("provider", n.provider.Name()))
	return nil
}

func completionMessage(saved events.TaskSaved) string {
	name := saved.AudioFile
	if name == "" {
		name = fmt.Sprintf("task %d", saved.TaskID)
	}
	msg := fmt.Sprintf("%s was marked completed with %d annotations", name, saved.Sent)
	if saved.Withheld > 0 {
		msg += fmt.Sprintf(" (%d unlabeled regions not saved)", saved.Withheld)
	}
	return msg
}
