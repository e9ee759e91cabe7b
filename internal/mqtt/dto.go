package mqtt

import (
	"time"

	"github.com/tphakala/audio-annotator/internal/annotation"
)

// AnnotationsMessage is published after every commit or delete
type AnnotationsMessage struct {
	TaskID      annotation.ID       `json:"task_id"`
	Count       int                 `json:"count"`
	Labeled     int                 `json:"labeled"`
	Annotations []annotation.Record `json:"annotations"`
	Timestamp   time.Time           `json:"timestamp"`
}

// StatusMessage is published after a save
type StatusMessage struct {
	TaskID    annotation.ID     `json:"task_id"`
	AudioFile string            `json:"audio_file,omitempty"`
	Status    annotation.Status `json:"status"`
	Sent      int               `json:"sent"`
	Withheld  int               `json:"withheld"`
	Timestamp time.Time         `json:"timestamp"`
}
