// Package diff flattens the region registry into the annotation list handed
// to the hosting page after every commit or delete.
package diff

import (
	"sync"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/registry"
)

// Geometry reads the current bounds of a region
type Geometry interface {
	Region(id string) (engine.Region, bool)
}

// ChangeFunc receives the complete current annotation list
type ChangeFunc func(records []annotation.Record)

// Producer recomputes the annotation list and notifies subscribers synchronously
type Producer struct {
	reg  *registry.Registry
	geom Geometry
	log  logger.Logger

	mu        sync.RWMutex
	listeners []ChangeFunc
}

// New returns a producer reading edits from reg and bounds from geom
func New(reg *registry.Registry, geom Geometry) *Producer {
	return &Producer{
		reg:  reg,
		geom: geom,
		log:  logger.Global().Module("diff"),
	}
}

// OnAnnotationsChange registers fn to receive every emitted list
func (p *Producer) OnAnnotationsChange(fn ChangeFunc) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Records returns one record per registry entry, in registry order. Bounds
// are read fresh from the engine so drags and resizes are picked up.
func (p *Producer) Records() []annotation.Record {
	keys := p.reg.Keys()
	records := make([]annotation.Record, 0, len(keys))

	for _, regionID := range keys {
		region, ok := p.geom.Region(regionID)
		if !ok {
			// The engine dropped the region behind our back, keep registry keys
			// a subset of engine regions.
			p.log.Warn("pruning registry entry without region", logger.String("region_id", regionID))
			p.reg.Remove(regionID)
			continue
		}

		edit := p.reg.Get(regionID)
		records = append(records, annotation.Record{
			StartTime:        region.Start,
			EndTime:          region.End,
			LabelID:          edit.LabelID,
			Attributes:       edit.AttributePairs(),
			ModelLabel:       edit.ModelLabel,
			IsModelGenerated: edit.IsModelGenerated,
		})
	}

	return records
}

// Emit recomputes the list and hands it to every subscriber
func (p *Producer) Emit() []annotation.Record {
	records := p.Records()

	p.mu.RLock()
	listeners := make([]ChangeFunc, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	p.log.Debug("annotations changed", logger.Int("count", len(records)))

	for _, fn := range listeners {
		// Each listener gets its own slice
		out := make([]annotation.Record, len(records))
		copy(out, records)
		fn(out)
	}

	return records
}
