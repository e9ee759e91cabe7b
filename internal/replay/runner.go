package replay

import (
	"context"
	"strings"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/workspace"
)

// Headless is the engine surface a replay needs
type Headless interface {
	Draw(start, end float64) (engine.Region, error)
	Click(id string) error
	Drag(id string, start, end float64) error
}

// Result summarizes a replay
type Result struct {
	Applied int
	Failed  int
	Records []annotation.Record
	Saved   *workspace.SaveSummary
}

// Runner applies scripts to a loaded workspace
type Runner struct {
	ws   *workspace.Workspace
	eng  Headless
	refs map[string]string
	log  logger.Logger
}

// NewRunner binds a runner to ws and the headless engine rendering it
func NewRunner(ws *workspace.Workspace, eng Headless) *Runner {
	return &Runner{
		ws:   ws,
		eng:  eng,
		refs: make(map[string]string),
		log:  logger.Global().Module("replay"),
	}
}

// Run applies every step of s and saves when the script asks for it. With
// ContinueOnError a failing step is logged and counted instead of stopping.
func (r *Runner) Run(ctx context.Context, s *Script) (Result, error) {
	var res Result
	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.apply(step); err != nil {
			res.Failed++
			r.log.Warn("replay step failed",
				logger.Int("step", i+1),
				logger.String("action", string(step.Action)),
				logger.Error(err))
			if !s.ContinueOnError {
				res.Records = r.ws.Annotations()
				return res, err
			}
			continue
		}
		res.Applied++
	}

	if s.Save != "" {
		summary, err := r.ws.Save(ctx, annotation.Status(s.Save))
		if err != nil {
			res.Records = r.ws.Annotations()
			return res, err
		}
		res.Saved = &summary
	}

	res.Records = r.ws.Annotations()
	r.log.Info("replay finished",
		logger.Int("applied", res.Applied),
		logger.Int("failed", res.Failed),
		logger.Int("annotations", len(res.Records)))
	return res, nil
}

func (r *Runner) apply(step Step) error {
	switch step.Action {
	case ActionCreate:
		region, err := r.eng.Draw(step.Start, step.End)
		if err != nil {
			return err
		}
		if step.Ref != "" {
			r.refs[step.Ref] = region.ID
		}
		return nil
	case ActionOpen:
		id, err := r.resolve(step)
		if err != nil {
			return err
		}
		return r.ws.OpenRegion(id)
	case ActionClick:
		id, err := r.resolve(step)
		if err != nil {
			return err
		}
		return r.eng.Click(id)
	case ActionDrag:
		id, err := r.resolve(step)
		if err != nil {
			return err
		}
		return r.eng.Drag(id, step.Start, step.End)
	case ActionLabel:
		return r.selectLabel(step.Label)
	case ActionAttribute:
		return r.selectAttribute(step.Attribute, step.Value)
	case ActionClear:
		return r.clearAttribute(step.Attribute)
	case ActionCommit:
		return r.ws.Commit()
	case ActionCancel:
		r.ws.Cancel()
		return nil
	case ActionDelete:
		_, err := r.ws.Delete()
		return err
	}
	return errors.Newf("unknown action %q", step.Action).
		Component("replay").
		Category(errors.CategoryValidation).
		Build()
}

// resolve maps a step target to a region id
func (r *Runner) resolve(step Step) (string, error) {
	if step.Ref != "" {
		if id, ok := r.refs[step.Ref]; ok {
			return id, nil
		}
		return "", notFound("ref", step.Ref)
	}
	for _, id := range r.ws.RegionIDs() {
		if edit, ok := r.ws.Edit(id); ok && edit.AnnotationID == step.Annotation {
			return id, nil
		}
	}
	return "", notFound("annotation", step.Annotation)
}

func (r *Runner) selectLabel(name string) error {
	tax := r.ws.Taxonomy()
	if tax == nil {
		return errors.New(workspace.ErrNoTask).Component("replay").Category(errors.CategoryState).Build()
	}
	label, ok := tax.LabelByName(name)
	if !ok {
		return notFound("label", name)
	}
	return r.ws.SelectLabel(label.ID)
}

// selectAttribute finds the attribute by name among the attributes of the
// label currently selected in the session
func (r *Runner) selectAttribute(attrName, valueName string) error {
	tax := r.ws.Taxonomy()
	if tax == nil {
		return errors.New(workspace.ErrNoTask).Component("replay").Category(errors.CategoryState).Build()
	}
	var lastErr error
	for _, label := range tax.Labels() {
		for _, attr := range label.Attributes {
			if !strings.EqualFold(attr.Name, attrName) {
				continue
			}
			for _, v := range attr.Values {
				if !strings.EqualFold(v.Value, valueName) {
					continue
				}
				// the session rejects attributes of other labels, try the next match
				if lastErr = r.ws.SelectAttribute(attr.ID, v.ID); lastErr == nil {
					return nil
				}
			}
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return notFound("attribute value", attrName+"="+valueName)
}

func (r *Runner) clearAttribute(attrName string) error {
	tax := r.ws.Taxonomy()
	if tax == nil {
		return errors.New(workspace.ErrNoTask).Component("replay").Category(errors.CategoryState).Build()
	}
	found := false
	for _, label := range tax.Labels() {
		for _, attr := range label.Attributes {
			if !strings.EqualFold(attr.Name, attrName) {
				continue
			}
			found = true
			if err := r.ws.ClearAttribute(attr.ID); err != nil {
				return err
			}
		}
	}
	if !found {
		return notFound("attribute", attrName)
	}
	return nil
}

func notFound(kind string, key any) error {
	return errors.Newf("%s %v not found", kind, key).
		Component("replay").
		Category(errors.CategoryNotFound).
		Build()
}
