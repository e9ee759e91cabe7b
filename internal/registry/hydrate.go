package registry

import (
	"fmt"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/taxonomy"
)

// SkippedRecord is a persisted annotation hydration could not materialize
type SkippedRecord struct {
	AnnotationID annotation.ID
	Err          error
}

// HydrationReport summarizes one HydrateFrom call
type HydrationReport struct {
	Hydrated        int
	Skipped         []SkippedRecord
	AlreadyHydrated bool
}

// HydrateFrom creates a region and an edit for every persisted annotation.
// It runs once per audio load; later calls are no-ops until Reset. Malformed
// records are skipped and reported while the rest hydrate.
func (r *Registry) HydrateFrom(records []annotation.Persisted, alloc engine.Allocator) HydrationReport {
	r.mu.Lock()
	if r.hydrated {
		r.mu.Unlock()
		r.log.Debug("hydration already done for this audio", logger.Int("records", len(records)))
		return HydrationReport{AlreadyHydrated: true}
	}
	r.hydrated = true

	tax := r.tax
	seen := make(map[annotation.ID]struct{}, len(records)+len(r.edits))
	for _, edit := range r.edits {
		if edit.Persisted() {
			seen[edit.AnnotationID] = struct{}{}
		}
	}
	r.mu.Unlock()

	var report HydrationReport
	skip := func(id annotation.ID, err error) {
		report.Skipped = append(report.Skipped, SkippedRecord{AnnotationID: id, Err: err})
		r.log.Warn("skipping malformed annotation",
			logger.Int64("annotation_id", int64(id)),
			logger.Error(err))
	}

	for i := range records {
		rec := &records[i]

		edit, err := editFromRecord(tax, rec)
		if err != nil {
			skip(rec.ID, err)
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			skip(rec.ID, hydrationError(rec.ID, "duplicate annotation id"))
			continue
		}

		style := engine.PendingStyle
		if edit.Labeled() {
			style = engine.LabeledStyle
		}
		region, err := alloc.AddRegion(rec.StartTime, rec.EndTime, style)
		if err != nil {
			skip(rec.ID, errors.New(err).
				Component("registry").
				Category(errors.CategoryRendering).
				Context("annotation_id", int64(rec.ID)).
				Build())
			continue
		}

		seen[rec.ID] = struct{}{}
		r.Upsert(region.ID, edit)
		report.Hydrated++
	}

	r.log.Info("hydrated regions",
		logger.Int("hydrated", report.Hydrated),
		logger.Int("skipped", len(report.Skipped)))

	return report
}

// editFromRecord validates a persisted record against the taxonomy
func editFromRecord(tax *taxonomy.Taxonomy, rec *annotation.Persisted) (Edit, error) {
	if !rec.ID.Valid() {
		return Edit{}, hydrationError(rec.ID, "missing annotation id")
	}
	if err := engine.ValidateSpan(rec.StartTime, rec.EndTime); err != nil {
		return Edit{}, hydrationError(rec.ID, err.Error())
	}
	if rec.LabelID.Valid() && !tax.HasLabel(rec.LabelID) {
		return Edit{}, hydrationError(rec.ID, fmt.Sprintf("unknown label %d", rec.LabelID))
	}

	edit := Empty()
	edit.AnnotationID = rec.ID
	edit.LabelID = rec.LabelID
	edit.ModelLabel = rec.ModelLabel
	edit.IsModelGenerated = rec.IsModelGenerated && rec.ModelLabel != ""

	for _, pair := range rec.Attributes {
		if !rec.LabelID.Valid() {
			return Edit{}, hydrationError(rec.ID, "attributes on an unlabeled annotation")
		}
		if _, dup := edit.AttributeValues[pair.AttributeID]; dup {
			return Edit{}, hydrationError(rec.ID, fmt.Sprintf("attribute %d selected twice", pair.AttributeID))
		}
		if err := tax.ValidateSelection(rec.LabelID, pair.AttributeID, pair.ValueID); err != nil {
			return Edit{}, hydrationError(rec.ID, err.Error())
		}
		edit.AttributeValues[pair.AttributeID] = pair.ValueID
	}

	return edit, nil
}

func hydrationError(id annotation.ID, reason string) error {
	return errors.Newf("annotation %d: %s", id, reason).
		Component("registry").
		Category(errors.CategoryHydration).
		Context("annotation_id", int64(id)).
		Build()
}
