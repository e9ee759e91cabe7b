// Package registry keeps the edit state of every region on the waveform,
// keyed by the rendering engine's region id.
package registry

import (
	"maps"
	"slices"
	"sync"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/taxonomy"
)

// Edit is the annotation state of one region.
type Edit struct {
	// AnnotationID is set when the region mirrors a stored annotation.
	// It is assigned once and never changes.
	AnnotationID annotation.ID
	// LabelID is zero while the region is unlabeled
	LabelID annotation.ID
	// AttributeValues maps attribute id to value id, all owned by LabelID
	AttributeValues map[annotation.ID]annotation.ID
	// ModelLabel is the model suggestion supplied at hydration. Write-once.
	ModelLabel string
	// IsModelGenerated turns true on the first human commit of a suggested region
	IsModelGenerated bool
}

// Labeled reports whether a label was chosen
func (e Edit) Labeled() bool { return e.LabelID.Valid() }

// Persisted reports whether the region mirrors a stored annotation
func (e Edit) Persisted() bool { return e.AnnotationID.Valid() }

// Clone returns a deep copy, the attribute map is never shared
func (e Edit) Clone() Edit {
	out := e
	out.AttributeValues = make(map[annotation.ID]annotation.ID, len(e.AttributeValues))
	maps.Copy(out.AttributeValues, e.AttributeValues)
	return out
}

// AttributePairs returns the attribute selection ordered by attribute id
func (e Edit) AttributePairs() []annotation.AttributeValue {
	pairs := make([]annotation.AttributeValue, 0, len(e.AttributeValues))
	for _, attrID := range slices.Sorted(maps.Keys(e.AttributeValues)) {
		pairs = append(pairs, annotation.AttributeValue{AttributeID: attrID, ValueID: e.AttributeValues[attrID]})
	}
	return pairs
}

// Empty is the default edit of a region nobody has touched
func Empty() Edit {
	return Edit{AttributeValues: map[annotation.ID]annotation.ID{}}
}

// Registry maps region ids to edits. Keys iterate in insertion order.
type Registry struct {
	mu       sync.RWMutex
	edits    map[string]Edit
	order    []string
	tax      *taxonomy.Taxonomy
	hydrated bool
	log      logger.Logger
}

// New returns an empty registry validating against tax. A nil taxonomy
// accepts no labels until Reset supplies one.
func New(tax *taxonomy.Taxonomy) *Registry {
	if tax == nil {
		tax, _ = taxonomy.New(nil)
	}
	return &Registry{
		edits: make(map[string]Edit),
		tax:   tax,
		log:   logger.Global().Module("registry"),
	}
}

// Taxonomy returns the taxonomy edits are validated against
func (r *Registry) Taxonomy() *taxonomy.Taxonomy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tax
}

// Upsert stores a copy of edit under regionID
func (r *Registry) Upsert(regionID string, edit Edit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.edits[regionID]; !exists {
		r.order = append(r.order, regionID)
	}
	r.edits[regionID] = edit.Clone()
}

// Get returns a copy of the edit for regionID, or Empty when absent
func (r *Registry) Get(regionID string) Edit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	edit, ok := r.edits[regionID]
	if !ok {
		return Empty()
	}
	return edit.Clone()
}

// Lookup is like Get but reports whether the region is registered
func (r *Registry) Lookup(regionID string) (Edit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	edit, ok := r.edits[regionID]
	if !ok {
		return Empty(), false
	}
	return edit.Clone(), true
}

// Remove deletes the entry. The caller removes the visual region.
func (r *Registry) Remove(regionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.edits[regionID]; !ok {
		return
	}
	delete(r.edits, regionID)
	r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == regionID })
}

// Len returns the number of registered regions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.edits)
}

// Keys returns region ids in insertion order
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// FindByAnnotation returns the region mirroring a stored annotation
func (r *Registry) FindByAnnotation(id annotation.ID) (string, bool) {
	if !id.Valid() {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, regionID := range r.order {
		if r.edits[regionID].AnnotationID == id {
			return regionID, true
		}
	}
	return "", false
}

// Reset clears every entry and re-arms hydration for a new audio load.
// A non-nil tax replaces the taxonomy of the previous task.
func (r *Registry) Reset(tax *taxonomy.Taxonomy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.edits = make(map[string]Edit)
	r.order = nil
	r.hydrated = false
	if tax != nil {
		r.tax = tax
	}
}

// Hydrated reports whether HydrateFrom already ran for the current audio
func (r *Registry) Hydrated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hydrated
}
