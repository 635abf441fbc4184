package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/roadtrip/client/assets"
	"github.com/cbodonnell/roadtrip/client/render"
	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/cenkalti/backoff/v5"
)

// compactScale shrinks remote models on compact displays.
const compactScale = 0.6

// ModelSource resolves model ids. assets.Catalog implements it.
type ModelSource interface {
	Lookup(id string) (assets.Model, error)
}

// Entity is a remote player. It owns its visual handle and its model load task.
type Entity struct {
	id       string
	registry *Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	name             string
	transform        render.Transform
	currentSpeed     float64
	kilometersDriven float64
	entityKind       string
	modelID          string
	animationTag     string
	sampleTimestamp  int64
	lastUpdate       time.Time

	loadState  LoadState
	generation uint64
	cancelLoad context.CancelFunc
	model      assets.Model
	handle     render.Handle
	hasHandle  bool
	released   bool
}

func newEntity(r *Registry, u PlayerUpdate, now time.Time) *Entity {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Entity{
		id:               u.ID,
		registry:         r,
		ctx:              ctx,
		cancel:           cancel,
		name:             u.Name,
		transform:        u.Transform,
		currentSpeed:     u.CurrentSpeed,
		kilometersDriven: u.KilometersDriven,
		entityKind:       u.EntityKind,
		modelID:          u.ModelID,
		animationTag:     u.AnimationTag,
		sampleTimestamp:  u.Timestamp,
		lastUpdate:       now,
	}

	e.mu.Lock()
	e.startLoadLocked()
	e.mu.Unlock()
	return e
}

func (e *Entity) ID() string {
	return e.id
}

func (e *Entity) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

func (e *Entity) LoadState() LoadState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadState
}

// LoadGeneration counts the loads started for this entity, including the first.
func (e *Entity) LoadGeneration() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

func (e *Entity) LastUpdate() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUpdate
}

// Handle returns the visual handle while the model is loaded.
func (e *Entity) Handle() (render.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle, e.hasHandle
}

func (e *Entity) State() EntityState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EntityState{
		ID:               e.id,
		Name:             e.name,
		Transform:        e.transform,
		CurrentSpeed:     e.currentSpeed,
		KilometersDriven: e.kilometersDriven,
		EntityKind:       e.entityKind,
		ModelID:          e.modelID,
		AnimationTag:     e.animationTag,
		SampleTimestamp:  e.sampleTimestamp,
		LastUpdate:       e.lastUpdate,
		LoadState:        e.loadState,
		LoadGeneration:   e.generation,
		HasVisual:        e.hasHandle,
	}
}

// apply merges an observation. It reports false when the observation is
// older than the last one applied.
func (e *Entity) apply(u PlayerUpdate, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return false
	}
	if u.Timestamp != 0 && u.Timestamp < e.sampleTimestamp {
		log.Warn("Received outdated state for %s: %d < %d", e.id, u.Timestamp, e.sampleTimestamp)
		return false
	}
	if u.Timestamp != 0 {
		e.sampleTimestamp = u.Timestamp
	}
	e.lastUpdate = now
	e.transform = u.Transform
	e.currentSpeed = u.CurrentSpeed
	e.kilometersDriven = u.KilometersDriven
	if e.hasHandle {
		e.registry.opts.Renderer.UpdateTransform(e.handle, e.transform)
	}
	if u.Name != "" && u.Name != e.name {
		e.setNameLocked(u.Name)
	}

	modelChanged := u.ModelID != e.modelID || u.EntityKind != e.entityKind
	animationChanged := u.AnimationTag != e.animationTag
	e.modelID = u.ModelID
	e.entityKind = u.EntityKind
	e.animationTag = u.AnimationTag

	if modelChanged {
		log.Debug("Model for %s changed to %s/%s, reloading", e.id, e.entityKind, e.modelID)
		e.startLoadLocked()
		return true
	}
	if animationChanged && e.hasHandle && e.model.HasAnimation(e.animationTag) {
		e.registry.opts.Renderer.PlayAnimation(e.handle, e.animationTag)
	}
	return true
}

func (e *Entity) rename(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released || name == e.name {
		return
	}
	e.setNameLocked(name)
}

func (e *Entity) setNameLocked(name string) {
	e.name = name
	if e.hasHandle && !e.registry.opts.Compact {
		e.registry.opts.Renderer.SetLabel(e.handle, name)
	}
}

// startLoadLocked tears down the current visual and begins a new load generation.
func (e *Entity) startLoadLocked() {
	if e.cancelLoad != nil {
		e.cancelLoad()
	}
	e.releaseHandleLocked()

	e.generation++
	ctx, cancel := context.WithCancel(e.ctx)
	e.cancelLoad = cancel
	e.loadState = LoadStateLoading
	go e.load(ctx, e.generation, e.modelID)
}

func (e *Entity) load(ctx context.Context, generation uint64, modelID string) {
	model, err := e.fetchModel(ctx, modelID)

	e.mu.Lock()
	defer e.mu.Unlock()

	// a newer load or a release superseded this one
	if ctx.Err() != nil || generation != e.generation || e.released {
		return
	}

	if err != nil {
		log.Warn("Failed to load model %q for %s: %v", modelID, e.id, err)
		e.loadState = LoadStateFailed
		e.registry.opts.Metrics.ModelLoad("failed")
		return
	}

	handle, err := e.registry.opts.Renderer.CreateVisual(e.visualSpecLocked(model), e.transform)
	if err != nil {
		log.Warn("Failed to create visual for %s: %v", e.id, err)
		e.loadState = LoadStateFailed
		e.registry.opts.Metrics.ModelLoad("failed")
		return
	}

	e.model = model
	e.handle = handle
	e.hasHandle = true
	e.loadState = LoadStateLoaded
	e.registry.opts.Metrics.ModelLoad("loaded")
	log.Debug("Loaded model %q for %s", model.ID, e.id)
}

func (e *Entity) fetchModel(ctx context.Context, modelID string) (assets.Model, error) {
	defaultModel := e.registry.opts.DefaultModel
	if modelID == "" {
		modelID = defaultModel
	}
	if modelID == "" {
		return assets.Model{}, fmt.Errorf("%w: no model id", assets.ErrModelNotFound)
	}

	return retry(ctx, e.registry.opts.Retry, func() (assets.Model, error) {
		model, err := e.registry.opts.Models.Lookup(modelID)
		if err == nil {
			return model, nil
		}
		if !errors.Is(err, assets.ErrModelNotFound) {
			return assets.Model{}, err
		}
		if defaultModel != "" && modelID != defaultModel {
			log.Warn("Model %q not found for %s, falling back to %q", modelID, e.id, defaultModel)
			if model, ferr := e.registry.opts.Models.Lookup(defaultModel); ferr == nil {
				return model, nil
			}
		}
		return assets.Model{}, backoff.Permanent(err)
	}, func(err error, next time.Duration) {
		log.Debug("Model %q for %s unavailable (%v), retrying in %s", modelID, e.id, err, next)
	})
}

func (e *Entity) visualSpecLocked(model assets.Model) render.VisualSpec {
	scale := model.Scale
	if scale == 0 {
		scale = 1
	}
	spec := render.VisualSpec{
		EntityID: e.id,
		ModelID:  model.ID,
		ModelURL: model.URL,
		Scale:    scale,
		Label:    e.name,
	}
	if e.registry.opts.Compact {
		spec.Scale *= compactScale
		spec.Label = ""
	}
	if model.HasAnimation(e.animationTag) {
		spec.Animation = e.animationTag
	}
	return spec
}

func (e *Entity) releaseHandleLocked() {
	if !e.hasHandle {
		return
	}
	e.registry.opts.Renderer.RemoveVisual(e.handle)
	e.hasHandle = false
	e.handle = 0
}

// release cancels any in-flight load and frees the visual. Only the first call has an effect.
func (e *Entity) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	e.released = true
	e.cancel()
	e.releaseHandleLocked()
	e.loadState = LoadStateUnloaded
}
