// Package events is an asynchronous, non-blocking bus that fans workspace
// events out to side consumers such as metrics, MQTT and notifications.
package events

import (
	"time"

	"github.com/tphakala/audio-annotator/internal/annotation"
)

// Kind names an event type
type Kind string

const (
	KindAnnotationsChanged Kind = "annotations_changed"
	KindTaskLoaded         Kind = "task_loaded"
	KindTaskSaved          Kind = "task_saved"
)

// Event is anything published on the bus
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// AnnotationsChanged carries the complete annotation list after a commit or delete
type AnnotationsChanged struct {
	TaskID  annotation.ID
	Records []annotation.Record
	At      time.Time
}

func (e AnnotationsChanged) Kind() Kind           { return KindAnnotationsChanged }
func (e AnnotationsChanged) Timestamp() time.Time { return e.At }

// TaskLoaded reports a hydrated task
type TaskLoaded struct {
	TaskID   annotation.ID
	Hydrated int
	Skipped  int
	At       time.Time
}

func (e TaskLoaded) Kind() Kind           { return KindTaskLoaded }
func (e TaskLoaded) Timestamp() time.Time { return e.At }

// TaskSaved reports a successful save
type TaskSaved struct {
	TaskID    annotation.ID
	AudioFile string
	Status    annotation.Status
	Sent      int
	Withheld  int
	At        time.Time
}

func (e TaskSaved) Kind() Kind           { return KindTaskSaved }
func (e TaskSaved) Timestamp() time.Time { return e.At }

// Consumer handles events. Handle runs on a bus worker and must not block for long.
type Consumer interface {
	Name() string
	Handle(event Event) error
}

// ConsumerFunc adapts a function to Consumer
type ConsumerFunc struct {
	ConsumerName string
	Fn           func(Event) error
}

func (c ConsumerFunc) Name() string             { return c.ConsumerName }
func (c ConsumerFunc) Handle(event Event) error { return c.Fn(event) }

// Stats are bus counters
type Stats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
