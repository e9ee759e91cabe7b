// Package annotation holds the data exchanged between the annotation workspace
// and the annotation store: the label taxonomy, annotation records and tasks.
package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is a store identifier. The zero value means "absent" and encodes as JSON null.
type ID int64

// Valid reports whether the id refers to a stored entity
func (id ID) Valid() bool { return id > 0 }

func (id ID) MarshalJSON() ([]byte, error) {
	if id == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(int64(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*id = 0
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(v)
	return nil
}

// Value is one selectable value of an attribute
type Value struct {
	ID    ID     `json:"id"`
	Value string `json:"value"`
}

// Attribute belongs to exactly one label
type Attribute struct {
	ID     ID      `json:"id"`
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// Label is a top-level class a region can be assigned to
type Label struct {
	ID         ID          `json:"id"`
	Name       string      `json:"name"`
	Attributes []Attribute `json:"attributes"`
}

// AttributeValue is one chosen (attribute, value) pair of an annotation
type AttributeValue struct {
	AttributeID ID `json:"attribute_id"`
	ValueID     ID `json:"value_id"`
}

// Record is one annotation as emitted to the hosting page and sent on save
type Record struct {
	StartTime        float64          `json:"start_time"`
	EndTime          float64          `json:"end_time"`
	LabelID          ID               `json:"label_id"`
	Attributes       []AttributeValue `json:"attributes"`
	ModelLabel       string           `json:"model_label,omitempty"`
	IsModelGenerated bool             `json:"is_model_generated"`
}

// Labeled reports whether a human assigned a label
func (r Record) Labeled() bool { return r.LabelID.Valid() }

// Persisted is a stored annotation as returned by the store
type Persisted struct {
	ID ID `json:"id"`
	Record
}

// Status is the review state of a task
type Status string

const (
	StatusNew        Status = "New"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// ParseStatus accepts the store's status names case-insensitively.
// An empty string yields StatusInProgress, the default on save.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return StatusInProgress, nil
	case "new":
		return StatusNew, nil
	case "in progress", "in_progress", "inprogress":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Project groups tasks sharing one label taxonomy
type Project struct {
	ID        ID      `json:"id"`
	Name      string  `json:"name"`
	ModelType string  `json:"model_type"`
	Labels    []Label `json:"labels"`
}

// Task is one audio file to annotate
type Task struct {
	ID        ID     `json:"id"`
	ProjectID ID     `json:"project"`
	AudioFile string `json:"audio_file"`
	AudioURL  string `json:"audio_url,omitempty"`
	Status    Status `json:"status"`
}

// TaskAnnotations is the payload that seeds a workspace for one task
type TaskAnnotations struct {
	Annotations []Persisted `json:"annotations"`
	Labels      []Label     `json:"labels"`
}

// SaveRequest replaces every annotation of a task
type SaveRequest struct {
	Annotations []Record `json:"annotations"`
	Status      Status   `json:"status,omitempty"`
}
