// Package taxonomy indexes the read-only label taxonomy of a task: labels,
// the attributes each label owns and the values each attribute offers.
package taxonomy

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/errors"
)

// Taxonomy answers ownership questions about labels, attributes and values.
// It is immutable after New and safe for concurrent reads.
type Taxonomy struct {
	labels      []annotation.Label
	labelIndex  map[annotation.ID]int
	attrOwner   map[annotation.ID]annotation.ID // attribute -> label
	attrs       map[annotation.ID]annotation.Attribute
	valueOwner  map[annotation.ID]annotation.ID // value -> attribute
	labelByName map[string]annotation.ID
}

// New builds a taxonomy from labels. Ids must be positive and unique per kind.
func New(labels []annotation.Label) (*Taxonomy, error) {
	t := &Taxonomy{
		labels:      make([]annotation.Label, 0, len(labels)),
		labelIndex:  make(map[annotation.ID]int, len(labels)),
		attrOwner:   make(map[annotation.ID]annotation.ID),
		attrs:       make(map[annotation.ID]annotation.Attribute),
		valueOwner:  make(map[annotation.ID]annotation.ID),
		labelByName: make(map[string]annotation.ID, len(labels)),
	}

	for _, label := range labels {
		if !label.ID.Valid() {
			return nil, invalid("label %q has no id", label.Name)
		}
		if _, dup := t.labelIndex[label.ID]; dup {
			return nil, invalid("duplicate label id %d", label.ID)
		}

		for _, attr := range label.Attributes {
			if !attr.ID.Valid() {
				return nil, invalid("attribute %q of label %d has no id", attr.Name, label.ID)
			}
			if owner, dup := t.attrOwner[attr.ID]; dup {
				return nil, invalid("attribute id %d owned by labels %d and %d", attr.ID, owner, label.ID)
			}
			t.attrOwner[attr.ID] = label.ID
			t.attrs[attr.ID] = attr

			for _, v := range attr.Values {
				if !v.ID.Valid() {
					return nil, invalid("value %q of attribute %d has no id", v.Value, attr.ID)
				}
				if owner, dup := t.valueOwner[v.ID]; dup {
					return nil, invalid("value id %d owned by attributes %d and %d", v.ID, owner, attr.ID)
				}
				t.valueOwner[v.ID] = attr.ID
			}
		}

		t.labelIndex[label.ID] = len(t.labels)
		t.labels = append(t.labels, label)

		// First label wins when two names fold to the same key
		key := foldName(label.Name)
		if _, exists := t.labelByName[key]; !exists {
			t.labelByName[key] = label.ID
		}
	}

	return t, nil
}

// foldName builds a fresh Caser per call, a Caser must not be shared between goroutines
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func invalid(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("taxonomy").
		Category(errors.CategoryTaxonomy).
		Build()
}

func notFound(kind string, id annotation.ID) error {
	return errors.Newf("unknown %s id %d", kind, id).
		Component("taxonomy").
		Category(errors.CategoryNotFound).
		Context("kind", kind).
		Context("id", int64(id)).
		Build()
}

// Labels returns all labels in their original order
func (t *Taxonomy) Labels() []annotation.Label {
	out := make([]annotation.Label, len(t.labels))
	copy(out, t.labels)
	return out
}

// Label returns the label with id
func (t *Taxonomy) Label(id annotation.ID) (annotation.Label, error) {
	idx, ok := t.labelIndex[id]
	if !ok {
		return annotation.Label{}, notFound("label", id)
	}
	return t.labels[idx], nil
}

// AttributesOf returns the ordered attributes of a label
func (t *Taxonomy) AttributesOf(labelID annotation.ID) ([]annotation.Attribute, error) {
	label, err := t.Label(labelID)
	if err != nil {
		return nil, err
	}
	out := make([]annotation.Attribute, len(label.Attributes))
	copy(out, label.Attributes)
	return out, nil
}

// ValuesOf returns the ordered values of an attribute
func (t *Taxonomy) ValuesOf(attributeID annotation.ID) ([]annotation.Value, error) {
	attr, ok := t.attrs[attributeID]
	if !ok {
		return nil, notFound("attribute", attributeID)
	}
	out := make([]annotation.Value, len(attr.Values))
	copy(out, attr.Values)
	return out, nil
}

// MustAttributesOf is like AttributesOf but panics on an unknown label
func (t *Taxonomy) MustAttributesOf(labelID annotation.ID) []annotation.Attribute {
	attrs, err := t.AttributesOf(labelID)
	if err != nil {
		panic(err)
	}
	return attrs
}

// MustValuesOf is like ValuesOf but panics on an unknown attribute
func (t *Taxonomy) MustValuesOf(attributeID annotation.ID) []annotation.Value {
	values, err := t.ValuesOf(attributeID)
	if err != nil {
		panic(err)
	}
	return values
}

// HasLabel reports whether id is a known label
func (t *Taxonomy) HasLabel(id annotation.ID) bool {
	_, ok := t.labelIndex[id]
	return ok
}

// OwnsAttribute reports whether attributeID belongs to labelID
func (t *Taxonomy) OwnsAttribute(labelID, attributeID annotation.ID) bool {
	owner, ok := t.attrOwner[attributeID]
	return ok && owner == labelID
}

// ValidateSelection checks that attributeID belongs to labelID and valueID to attributeID
func (t *Taxonomy) ValidateSelection(labelID, attributeID, valueID annotation.ID) error {
	if !t.HasLabel(labelID) {
		return notFound("label", labelID)
	}
	if !t.OwnsAttribute(labelID, attributeID) {
		return errors.Newf("attribute %d does not belong to label %d", attributeID, labelID).
			Component("taxonomy").
			Category(errors.CategoryValidation).
			Context("label_id", int64(labelID)).
			Context("attribute_id", int64(attributeID)).
			Build()
	}
	if owner, ok := t.valueOwner[valueID]; !ok || owner != attributeID {
		return errors.Newf("value %d does not belong to attribute %d", valueID, attributeID).
			Component("taxonomy").
			Category(errors.CategoryValidation).
			Context("attribute_id", int64(attributeID)).
			Context("value_id", int64(valueID)).
			Build()
	}
	return nil
}

// LabelByName finds a label by name ignoring case, used to match a model
// suggestion against the taxonomy.
func (t *Taxonomy) LabelByName(name string) (annotation.Label, bool) {
	id, ok := t.labelByName[foldName(name)]
	if !ok {
		return annotation.Label{}, false
	}
	label, err := t.Label(id)
	return label, err == nil
}

// String summarizes the taxonomy size for logs
func (t *Taxonomy) String() string {
	return fmt.Sprintf("taxonomy(labels=%d attributes=%d values=%d)", len(t.labels), len(t.attrs), len(t.valueOwner))
}
