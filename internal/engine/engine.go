// Package engine defines the contract with the waveform rendering engine that
// owns regions on screen, and a headless in-memory engine used by replays,
// imports and tests.
package engine

import (
	"fmt"
	"math"

	"github.com/tphakala/audio-annotator/internal/errors"
)

// Region colors
const (
	PendingColor = "rgba(79, 70, 229, 0.3)"
	LabeledColor = "rgba(34, 197, 94, 0.3)"
)

// Style is the visual state of a region
type Style struct {
	Color string
}

var (
	// PendingStyle marks regions without a human label
	PendingStyle = Style{Color: PendingColor}
	// LabeledStyle marks regions carrying a committed label
	LabeledStyle = Style{Color: LabeledColor}
)

// Region is a time span drawn on the waveform. ID is only stable for the
// current render session.
type Region struct {
	ID    string
	Start float64
	End   float64
	Style Style
}

// Duration returns the region length in seconds
func (r Region) Duration() float64 { return r.End - r.Start }

// Allocator materializes regions, used by hydration
type Allocator interface {
	AddRegion(start, end float64, style Style) (Region, error)
}

// Engine is the command surface the annotator needs from a rendering engine
type Engine interface {
	Allocator
	RemoveRegion(id string) error
	SetOptions(id string, style Style) error
	Region(id string) (Region, bool)
}

// Events is implemented by engines that report user gestures
type Events interface {
	OnRegionCreated(fn func(Region))
	OnRegionClicked(fn func(Region))
}

// ValidateSpan checks that [start, end] is a finite, non-negative, non-empty span
func ValidateSpan(start, end float64) error {
	switch {
	case math.IsNaN(start) || math.IsNaN(end) || math.IsInf(start, 0) || math.IsInf(end, 0):
		return spanError(start, end, "bounds must be finite")
	case start < 0:
		return spanError(start, end, "start must not be negative")
	case end <= start:
		return spanError(start, end, "end must be after start")
	}
	return nil
}

func spanError(start, end float64, reason string) error {
	return errors.Newf("invalid region span [%g, %g]: %s", start, end, reason).
		Component("engine").
		Category(errors.CategoryValidation).
		Context("start", start).
		Context("end", end).
		Build()
}

// ErrUnknownRegion is returned for commands against a region the engine does not hold
var ErrUnknownRegion = errors.NewStd("unknown region")

func unknownRegion(id string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrUnknownRegion, id)).
		Component("engine").
		Category(errors.CategoryNotFound).
		Context("region_id", id).
		Build()
}
