// Package workspace binds the annotation core to one task: it loads the
// task's taxonomy and annotations, reacts to rendering engine gestures and
// saves the annotation list back to the store on request.
package workspace

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/deletion"
	"github.com/tphakala/audio-annotator/internal/diff"
	"github.com/tphakala/audio-annotator/internal/engine"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/registry"
	"github.com/tphakala/audio-annotator/internal/session"
	"github.com/tphakala/audio-annotator/internal/taxonomy"
)

// Renderer is a rendering engine that also reports user gestures
type Renderer interface {
	engine.Engine
	engine.Events
}

// Store is the part of the annotation store the workspace talks to
type Store interface {
	Task(ctx context.Context, id annotation.ID) (annotation.Task, error)
	TaskAnnotations(ctx context.Context, id annotation.ID) (annotation.TaskAnnotations, error)
	SaveAnnotations(ctx context.Context, id annotation.ID, req annotation.SaveRequest) error
}

// SaveSummary describes one Save call
type SaveSummary struct {
	TaskID   annotation.ID
	Status   annotation.Status
	Sent     int
	Withheld int
}

// ErrNoTask is returned when an operation needs a loaded task
var ErrNoTask = errors.NewStd("no task loaded")

// Workspace serializes every core operation behind one mutex, so it can be
// driven from several goroutines.
type Workspace struct {
	mu sync.Mutex

	eng   Renderer
	store Store
	reg   *registry.Registry
	prod  *diff.Producer
	coord *deletion.Coordinator
	ctrl  *session.Controller

	task   annotation.Task
	loaded bool
	// current mirrors task while loaded, readable from change listeners
	current atomic.Pointer[annotation.Task]

	listenersMu sync.RWMutex
	listeners   []diff.ChangeFunc
	saved       []func(SaveSummary)

	log logger.Logger
}

// New wires the core around eng. store may be nil for offline use; queue may
// be nil to keep deletes local.
func New(eng Renderer, store Store, queue deletion.Enqueuer) *Workspace {
	w := &Workspace{
		eng:   eng,
		store: store,
		reg:   registry.New(nil),
		log:   logger.Global().Module("workspace"),
	}

	w.prod = diff.New(w.reg, eng)
	w.prod.OnAnnotationsChange(w.fanOut)

	w.coord = deletion.NewCoordinator(w.reg, eng, queue, w.prod)
	w.ctrl = session.New(w.reg, eng, w.coord, w.prod)

	eng.OnRegionCreated(w.handleRegionCreated)
	eng.OnRegionClicked(w.handleRegionClicked)

	return w
}

// OnAnnotationsChange registers fn to receive the complete annotation list
// after every commit or delete. fn runs synchronously under the workspace
// lock; apart from Task it must not call back into the workspace.
func (w *Workspace) OnAnnotationsChange(fn diff.ChangeFunc) {
	if fn == nil {
		return
	}
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// OnSaved registers fn to run after a successful Save
func (w *Workspace) OnSaved(fn func(SaveSummary)) {
	if fn == nil {
		return
	}
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()
	w.saved = append(w.saved, fn)
}

func (w *Workspace) fanOut(records []annotation.Record) {
	w.listenersMu.RLock()
	listeners := make([]diff.ChangeFunc, len(w.listeners))
	copy(listeners, w.listeners)
	w.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(records)
	}
}

// Load fetches a task with its taxonomy and annotations and hydrates the engine
func (w *Workspace) Load(ctx context.Context, taskID annotation.ID) (registry.HydrationReport, error) {
	if w.store == nil {
		return registry.HydrationReport{}, errors.Newf("workspace has no annotation store").
			Component("workspace").
			Category(errors.CategoryConfiguration).
			Build()
	}

	task, err := w.store.Task(ctx, taskID)
	if err != nil {
		return registry.HydrationReport{}, err
	}
	payload, err := w.store.TaskAnnotations(ctx, taskID)
	if err != nil {
		return registry.HydrationReport{}, err
	}

	return w.LoadLocal(task, payload)
}

// LoadLocal replaces the current audio with task, tearing down existing
// regions and hydrating the persisted annotations of payload.
func (w *Workspace) LoadLocal(task annotation.Task, payload annotation.TaskAnnotations) (registry.HydrationReport, error) {
	tax, err := taxonomy.New(payload.Labels)
	if err != nil {
		return registry.HydrationReport{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.teardownLocked()
	w.reg.Reset(tax)
	w.setTaskLocked(task, true)

	report := w.reg.HydrateFrom(payload.Annotations, w.eng)

	w.log.Info("task loaded",
		logger.Int64("task_id", int64(task.ID)),
		logger.String("taxonomy", tax.String()),
		logger.Int("hydrated", report.Hydrated),
		logger.Int("skipped", len(report.Skipped)))

	return report, nil
}

// Close tears the current audio down, removing every region
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.teardownLocked()
	w.reg.Reset(nil)
	w.setTaskLocked(annotation.Task{}, false)
}

func (w *Workspace) setTaskLocked(task annotation.Task, loaded bool) {
	w.task = task
	w.loaded = loaded
	if !loaded {
		w.current.Store(nil)
		return
	}
	w.current.Store(&task)
}

func (w *Workspace) teardownLocked() {
	w.ctrl.Cancel()
	for _, regionID := range w.reg.Keys() {
		if err := w.eng.RemoveRegion(regionID); err != nil && !errors.IsNotFound(err) {
			w.log.Warn("failed to remove region on teardown", logger.String("region_id", regionID), logger.Error(err))
		}
	}
}

// Task returns the loaded task. It does not take the workspace lock and is
// safe to call from change and save listeners.
func (w *Workspace) Task() (annotation.Task, bool) {
	task := w.current.Load()
	if task == nil {
		return annotation.Task{}, false
	}
	return *task, true
}

// Taxonomy returns the taxonomy of the loaded task
func (w *Workspace) Taxonomy() *taxonomy.Taxonomy {
	return w.reg.Taxonomy()
}

func (w *Workspace) requireTaskLocked() error {
	if !w.loaded {
		return errors.New(ErrNoTask).
			Component("workspace").
			Category(errors.CategoryState).
			Build()
	}
	return nil
}

// handleRegionCreated registers a freshly drawn region and opens it for editing
func (w *Workspace) handleRegionCreated(r engine.Region) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireTaskLocked(); err != nil {
		w.log.Warn("region drawn without a task", logger.String("region_id", r.ID))
		return
	}

	w.reg.Upsert(r.ID, registry.Empty())
	if err := w.ctrl.Open(r.ID); err != nil {
		// The region stays registered as an unlabeled placeholder
		w.log.Warn("cannot open new region", logger.String("region_id", r.ID), logger.Error(err))
	}
}

func (w *Workspace) handleRegionClicked(r engine.Region) {
	if err := w.OpenRegion(r.ID); err != nil {
		w.log.Warn("cannot open clicked region", logger.String("region_id", r.ID), logger.Error(err))
	}
}

// OpenRegion starts an edit session on a registered region. Opening the
// region already being edited is a no-op.
func (w *Workspace) OpenRegion(regionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.requireTaskLocked(); err != nil {
		return err
	}
	if w.ctrl.State() == session.Open && w.ctrl.RegionID() == regionID {
		return nil
	}
	if _, ok := w.reg.Lookup(regionID); !ok {
		return errors.Newf("region %s is not registered", regionID).
			Component("workspace").
			Category(errors.CategoryNotFound).
			Context("region_id", regionID).
			Build()
	}
	return w.ctrl.Open(regionID)
}

// SelectLabel chooses the label of the open session
func (w *Workspace) SelectLabel(labelID annotation.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctrl.SelectLabel(labelID)
}

// SelectAttribute chooses an attribute value in the open session
func (w *Workspace) SelectAttribute(attributeID, valueID annotation.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctrl.SelectAttribute(attributeID, valueID)
}

// ClearAttribute drops the chosen value of an attribute in the open session
func (w *Workspace) ClearAttribute(attributeID annotation.ID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctrl.ClearAttribute(attributeID)
}

// Commit writes the open session back and emits the annotation list
func (w *Workspace) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctrl.Commit()
}

// Delete removes the region of the open session
func (w *Workspace) Delete() (deletion.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctrl.Delete()
}

// Cancel discards the open session
func (w *Workspace) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctrl.Cancel()
}

// SessionState returns the edit session state and the region being edited
func (w *Workspace) SessionState() (session.State, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctrl.State(), w.ctrl.RegionID()
}

// Edit returns the registered edit of a region
func (w *Workspace) Edit(regionID string) (registry.Edit, bool) {
	return w.reg.Lookup(regionID)
}

// RegionIDs returns registered region ids in creation order
func (w *Workspace) RegionIDs() []string {
	return w.reg.Keys()
}

// Annotations returns the current annotation list without notifying listeners
func (w *Workspace) Annotations() []annotation.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prod.Records()
}

// Save sends the annotation list to the store with status. Unlabeled
// placeholders are withheld unless they carry a model suggestion.
func (w *Workspace) Save(ctx context.Context, status annotation.Status) (SaveSummary, error) {
	if status == "" {
		status = annotation.StatusInProgress
	}
	if !status.Valid() {
		return SaveSummary{}, errors.Newf("invalid task status %q", status).
			Component("workspace").
			Category(errors.CategoryValidation).
			Build()
	}

	w.mu.Lock()
	if err := w.requireTaskLocked(); err != nil {
		w.mu.Unlock()
		return SaveSummary{}, err
	}
	taskID := w.task.ID
	records := w.prod.Records()
	w.mu.Unlock()

	if w.store == nil {
		return SaveSummary{}, errors.Newf("workspace has no annotation store").
			Component("workspace").
			Category(errors.CategoryConfiguration).
			Build()
	}

	kept, withheld := Saveable(records)
	if withheld > 0 {
		w.log.Info("withholding unlabeled regions from save",
			logger.Int64("task_id", int64(taskID)),
			logger.Int("withheld", withheld))
	}

	if err := w.store.SaveAnnotations(ctx, taskID, annotation.SaveRequest{Annotations: kept, Status: status}); err != nil {
		return SaveSummary{}, err
	}

	summary := SaveSummary{TaskID: taskID, Status: status, Sent: len(kept), Withheld: withheld}

	w.mu.Lock()
	if w.loaded && w.task.ID == taskID {
		task := w.task
		task.Status = status
		w.setTaskLocked(task, true)
	}
	w.mu.Unlock()

	w.log.Info("annotations saved",
		logger.Int64("task_id", int64(taskID)),
		logger.String("status", string(status)),
		logger.Int("sent", summary.Sent))

	w.listenersMu.RLock()
	saved := make([]func(SaveSummary), len(w.saved))
	copy(saved, w.saved)
	w.listenersMu.RUnlock()
	for _, fn := range saved {
		fn(summary)
	}

	return summary, nil
}

// Saveable filters records the store accepts: labeled ones and model
// suggestions. It returns the kept records and how many were withheld.
func Saveable(records []annotation.Record) (kept []annotation.Record, withheld int) {
	kept = make([]annotation.Record, 0, len(records))
	for _, r := range records {
		if r.Labeled() || r.ModelLabel != "" {
			kept = append(kept, r)
			continue
		}
		withheld++
	}
	return kept, withheld
}
