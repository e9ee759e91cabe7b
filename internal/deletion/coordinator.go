package deletion

import (
	"time"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/registry"
)

// Enqueuer accepts delete commands without blocking
type Enqueuer interface {
	Enqueue(cmd Command) bool
}

// RegionRemover removes the visual region
type RegionRemover interface {
	RemoveRegion(id string) error
}

// Emitter recomputes and publishes the annotation list
type Emitter interface {
	Emit() []annotation.Record
}

// Result describes one Delete call
type Result struct {
	RegionID     string
	AnnotationID annotation.ID
	// RemoteQueued is true when a delete was handed to the queue
	RemoteQueued bool
}

// Coordinator removes a region everywhere. The remote delete is best effort:
// local state is removed whatever the queue or the store do.
type Coordinator struct {
	reg     *registry.Registry
	regions RegionRemover
	queue   Enqueuer
	emitter Emitter
	log     logger.Logger
}

// NewCoordinator wires the registry, the engine, the remote queue and the diff producer
func NewCoordinator(reg *registry.Registry, regions RegionRemover, queue Enqueuer, emitter Emitter) *Coordinator {
	return &Coordinator{
		reg:     reg,
		regions: regions,
		queue:   queue,
		emitter: emitter,
		log:     logger.Global().Module("deletion"),
	}
}

// Delete forwards a delete for the region's stored annotation, if any, then
// removes the visual region and the registry entry and emits the new list.
// Deleting an unknown or already deleted region is not an error.
func (c *Coordinator) Delete(regionID string) Result {
	edit := c.reg.Get(regionID)
	res := Result{RegionID: regionID, AnnotationID: edit.AnnotationID}

	if edit.Persisted() && c.queue != nil {
		res.RemoteQueued = c.queue.Enqueue(Command{
			AnnotationID: edit.AnnotationID,
			RegionID:     regionID,
			EnqueuedAt:   time.Now(),
		})
	}

	if err := c.regions.RemoveRegion(regionID); err != nil {
		if errors.IsNotFound(err) {
			c.log.Debug("region already removed", logger.String("region_id", regionID))
		} else {
			c.log.Warn("failed to remove region", logger.String("region_id", regionID), logger.Error(err))
		}
	}
	c.reg.Remove(regionID)

	c.log.Debug("region deleted",
		logger.String("region_id", regionID),
		logger.Int64("annotation_id", int64(res.AnnotationID)),
		logger.Bool("remote_queued", res.RemoteQueued))

	if c.emitter != nil {
		c.emitter.Emit()
	}
	return res
}
