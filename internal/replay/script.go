// Package replay drives an annotation workspace from a YAML edit script
// using the headless engine. It is used to reproduce editing sessions and to
// batch edit tasks without a browser.
package replay

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/errors"
)

// Action names a script step
type Action string

const (
	ActionCreate    Action = "create"
	ActionOpen      Action = "open"
	ActionClick     Action = "click"
	ActionLabel     Action = "label"
	ActionAttribute Action = "attribute"
	ActionClear     Action = "clear"
	ActionDrag      Action = "drag"
	ActionCommit    Action = "commit"
	ActionCancel    Action = "cancel"
	ActionDelete    Action = "delete"
)

// Step is one edit. Ref names a region created earlier in the script;
// Annotation targets a region hydrated from a stored annotation.
type Step struct {
	Action     Action        `yaml:"action"`
	Ref        string        `yaml:"ref,omitempty"`
	Annotation annotation.ID `yaml:"annotation,omitempty"`
	Start      float64       `yaml:"start,omitempty"`
	End        float64       `yaml:"end,omitempty"`
	Label      string        `yaml:"label,omitempty"`
	Attribute  string        `yaml:"attribute,omitempty"`
	Value      string        `yaml:"value,omitempty"`
}

// Script is a replayable editing session
type Script struct {
	Task            annotation.ID `yaml:"task"`
	Steps           []Step        `yaml:"steps"`
	Save            string        `yaml:"save,omitempty"`
	ContinueOnError bool          `yaml:"continue_on_error,omitempty"`
}

// LoadScript reads and validates a script file
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("replay").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a YAML script
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.New(err).
			Component("replay").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every step carries the fields its action needs
func (s *Script) Validate() error {
	refs := make(map[string]bool)
	for i, step := range s.Steps {
		step.Action = Action(strings.ToLower(string(step.Action)))
		s.Steps[i].Action = step.Action

		var problem string
		switch step.Action {
		case ActionCreate:
			switch {
			case step.End <= step.Start || step.Start < 0:
				problem = "create needs 0 <= start < end"
			case step.Ref != "" && refs[step.Ref]:
				problem = "ref " + step.Ref + " is already defined"
			}
			if step.Ref != "" {
				refs[step.Ref] = true
			}
		case ActionOpen, ActionClick:
			problem = targetProblem(step, refs)
		case ActionDrag:
			problem = targetProblem(step, refs)
			if problem == "" && (step.End <= step.Start || step.Start < 0) {
				problem = "drag needs 0 <= start < end"
			}
		case ActionLabel:
			if strings.TrimSpace(step.Label) == "" {
				problem = "label needs a label name"
			}
		case ActionAttribute:
			if step.Attribute == "" || step.Value == "" {
				problem = "attribute needs attribute and value"
			}
		case ActionClear:
			if strings.TrimSpace(step.Attribute) == "" {
				problem = "clear needs an attribute name"
			}
		case ActionCommit, ActionCancel, ActionDelete:
		default:
			problem = "unknown action " + string(step.Action)
		}

		if problem != "" {
			return errors.Newf("step %d: %s", i+1, problem).
				Component("replay").
				Category(errors.CategoryValidation).
				Context("step", i+1).
				Build()
		}
	}

	if s.Save != "" {
		status, err := annotation.ParseStatus(s.Save)
		if err != nil {
			return errors.New(err).
				Component("replay").
				Category(errors.CategoryValidation).
				Build()
		}
		s.Save = string(status)
	}
	return nil
}

func targetProblem(step Step, refs map[string]bool) string {
	switch {
	case step.Ref == "" && !step.Annotation.Valid():
		return string(step.Action) + " needs ref or annotation"
	case step.Ref != "" && !refs[step.Ref]:
		return "ref " + step.Ref + " is not defined by an earlier create"
	}
	return ""
}
