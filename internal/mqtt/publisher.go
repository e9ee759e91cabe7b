package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/events"
)

// Publisher is an event bus consumer forwarding workspace events to MQTT.
// Topics are <prefix>/tasks/<id>/annotations and <prefix>/tasks/<id>/status.
type Publisher struct {
	client  Client
	prefix  string
	timeout time.Duration
}

// NewPublisher publishes through client under prefix
func NewPublisher(client Client, prefix string, timeout time.Duration) *Publisher {
	if prefix == "" {
		prefix = DefaultConfig().Topic
	}
	if timeout <= 0 {
		timeout = DefaultConfig().PublishTimeout
	}
	return &Publisher{client: client, prefix: prefix, timeout: timeout}
}

// Name implements events.Consumer
func (p *Publisher) Name() string { return "mqtt" }

// Handle implements events.Consumer
func (p *Publisher) Handle(event events.Event) error {
	var (
		topic string
		msg   any
	)

	switch ev := event.(type) {
	case events.AnnotationsChanged:
		labeled := 0
		for _, r := range ev.Records {
			if r.Labeled() {
				labeled++
			}
		}
		topic = fmt.Sprintf("%s/tasks/%d/annotations", p.prefix, ev.TaskID)
		msg = AnnotationsMessage{
			TaskID:      ev.TaskID,
			Count:       len(ev.Records),
			Labeled:     labeled,
			Annotations: ev.Records,
			Timestamp:   ev.At,
		}
	case events.TaskSaved:
		topic = fmt.Sprintf("%s/tasks/%d/status", p.prefix, ev.TaskID)
		msg = StatusMessage{
			TaskID:    ev.TaskID,
			AudioFile: ev.AudioFile,
			Status:    ev.Status,
			Sent:      ev.Sent,
			Withheld:  ev.Withheld,
			Timestamp: ev.At,
		}
	default:
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.client.Publish(ctx, topic, payload)
}
