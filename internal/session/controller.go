// Package session implements the edit form opened on a region: an explicit
// Idle/Open state machine that reads from and commits to the region registry.
package session

import (
	"fmt"
	"maps"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/deletion"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/registry"
)

// State of the controller
type State int

const (
	Idle State = iota
	Open
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Open:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sentinel errors, wrapped with categorized context
var (
	ErrSessionOpen   = errors.NewStd("an edit session is already open")
	ErrNoSession     = errors.NewStd("no edit session is open")
	ErrLabelRequired = errors.NewStd("a label is required")
)

// Styler recolors a region
type Styler interface {
	SetOptions(id string, style engine.Style) error
}

// Deleter removes a region everywhere
type Deleter interface {
	Delete(regionID string) deletion.Result
}

// Emitter publishes the annotation list
type Emitter interface {
	Emit() []annotation.Record
}

// Controller holds at most one open edit session. It is not safe for
// concurrent use; the workspace serializes calls.
type Controller struct {
	reg     *registry.Registry
	styler  Styler
	deleter Deleter
	emitter Emitter
	log     logger.Logger

	state              State
	regionID           string
	selectedLabelID    annotation.ID
	selectedAttributes map[annotation.ID]annotation.ID
}

// New returns an idle controller
func New(reg *registry.Registry, styler Styler, deleter Deleter, emitter Emitter) *Controller {
	return &Controller{
		reg:                reg,
		styler:             styler,
		deleter:            deleter,
		emitter:            emitter,
		log:                logger.Global().Module("session"),
		selectedAttributes: map[annotation.ID]annotation.ID{},
	}
}

// State returns the current state
func (c *Controller) State() State { return c.state }

// RegionID returns the region being edited, empty when idle
func (c *Controller) RegionID() string { return c.regionID }

// SelectedLabel returns the label chosen in the form
func (c *Controller) SelectedLabel() annotation.ID { return c.selectedLabelID }

// SelectedAttributes returns a copy of the attribute choices in the form
func (c *Controller) SelectedAttributes() map[annotation.ID]annotation.ID {
	return maps.Clone(c.selectedAttributes)
}

// Open starts editing regionID, loading its current edit or the empty default
func (c *Controller) Open(regionID string) error {
	if c.state == Open {
		return stateError(ErrSessionOpen, c.state).
			Context("open_region_id", c.regionID).
			Context("region_id", regionID).
			Build()
	}

	edit := c.reg.Get(regionID)
	c.state = Open
	c.regionID = regionID
	c.selectedLabelID = edit.LabelID
	c.selectedAttributes = edit.AttributeValues

	c.log.Debug("edit session opened",
		logger.String("region_id", regionID),
		logger.Int64("label_id", int64(edit.LabelID)))
	return nil
}

// SelectLabel chooses a label. Changing the label clears the attribute choices.
func (c *Controller) SelectLabel(labelID annotation.ID) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	if labelID.Valid() && !c.reg.Taxonomy().HasLabel(labelID) {
		return errors.Newf("unknown label id %d", labelID).
			Component("session").
			Category(errors.CategoryNotFound).
			Context("label_id", int64(labelID)).
			Build()
	}

	if labelID != c.selectedLabelID {
		c.selectedAttributes = map[annotation.ID]annotation.ID{}
	}
	c.selectedLabelID = labelID
	return nil
}

// SelectAttribute sets the value of an attribute of the selected label
func (c *Controller) SelectAttribute(attributeID, valueID annotation.ID) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	if !c.selectedLabelID.Valid() {
		return validationError(ErrLabelRequired, c.regionID)
	}
	if err := c.reg.Taxonomy().ValidateSelection(c.selectedLabelID, attributeID, valueID); err != nil {
		return err
	}

	c.selectedAttributes[attributeID] = valueID
	return nil
}

// ClearAttribute removes the choice for an attribute
func (c *Controller) ClearAttribute(attributeID annotation.ID) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	delete(c.selectedAttributes, attributeID)
	return nil
}

// Commit writes the form back to the registry, recolors the region, closes
// the session and emits the annotation list. Without a label nothing changes
// and the session stays open.
func (c *Controller) Commit() error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	if !c.selectedLabelID.Valid() {
		return validationError(ErrLabelRequired, c.regionID)
	}

	prev := c.reg.Get(c.regionID)
	next := registry.Edit{
		AnnotationID:     prev.AnnotationID,
		LabelID:          c.selectedLabelID,
		AttributeValues:  c.selectedAttributes,
		ModelLabel:       prev.ModelLabel,
		IsModelGenerated: prev.IsModelGenerated || prev.ModelLabel != "",
	}
	c.reg.Upsert(c.regionID, next)

	if err := c.styler.SetOptions(c.regionID, engine.LabeledStyle); err != nil {
		c.log.Warn("failed to recolor region", logger.String("region_id", c.regionID), logger.Error(err))
	}

	c.log.Debug("edit committed",
		logger.String("region_id", c.regionID),
		logger.Int64("label_id", int64(next.LabelID)),
		logger.Int("attributes", len(next.AttributeValues)))

	c.reset()
	c.emitter.Emit()
	return nil
}

// Delete removes the edited region through the deleter and closes the session
func (c *Controller) Delete() (deletion.Result, error) {
	if err := c.requireOpen(); err != nil {
		return deletion.Result{}, err
	}

	regionID := c.regionID
	// Idle regardless of what the remote side does
	defer c.reset()
	return c.deleter.Delete(regionID), nil
}

// Cancel closes the session without touching the registry
func (c *Controller) Cancel() {
	if c.state == Open {
		c.log.Debug("edit session cancelled", logger.String("region_id", c.regionID))
	}
	c.reset()
}

func (c *Controller) reset() {
	c.state = Idle
	c.regionID = ""
	c.selectedLabelID = 0
	c.selectedAttributes = map[annotation.ID]annotation.ID{}
}

func (c *Controller) requireOpen() error {
	if c.state != Open {
		return stateError(ErrNoSession, c.state).Build()
	}
	return nil
}

func stateError(err error, state State) *errors.ErrorBuilder {
	return errors.New(err).
		Component("session").
		Category(errors.CategoryState).
		Context("state", state.String())
}

func validationError(err error, regionID string) error {
	return errors.New(err).
		Component("session").
		Category(errors.CategoryValidation).
		Context("region_id", regionID).
		Build()
}
