package remote

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cbodonnell/roadtrip/client/render"
	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/cbodonnell/roadtrip/pkg/telemetry"
)

type NewRegistryOptions struct {
	// LocalPlayerID is never tracked as a remote entity.
	LocalPlayerID string
	Models        ModelSource
	Renderer      render.Renderer
	Retry         RetryPolicy
	// DefaultModel replaces model ids missing from the catalog. Empty disables the fallback.
	DefaultModel string
	// Compact shrinks remote models and hides name labels.
	Compact bool
	Metrics *telemetry.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
	// OnCountChanged is called with the new entity count after every change.
	OnCountChanged func(count int)
}

// Registry maps remote player ids to entities. Mutations are expected from a
// single goroutine; reads may come from anywhere.
type Registry struct {
	opts NewRegistryOptions

	mu       sync.RWMutex
	entities map[string]*Entity
}

func NewRegistry(opts NewRegistryOptions) (*Registry, error) {
	if opts.Models == nil {
		return nil, fmt.Errorf("model source is required")
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		opts:     opts,
		entities: make(map[string]*Entity),
	}, nil
}

// Seed replaces the registry contents with the snapshot. Entities already
// tracked keep their loaded visuals; everyone else is released.
func (r *Registry) Seed(updates []PlayerUpdate) {
	now := r.opts.Now()
	keep := make(map[string]struct{}, len(updates))

	r.mu.Lock()
	before := len(r.entities)
	for _, u := range updates {
		if u.ID == "" || u.ID == r.opts.LocalPlayerID {
			continue
		}
		if _, dup := keep[u.ID]; dup {
			log.Warn("Duplicate player %s in snapshot", u.ID)
		}
		keep[u.ID] = struct{}{}
		if e, ok := r.entities[u.ID]; ok {
			e.apply(u, now)
			continue
		}
		r.entities[u.ID] = newEntity(r, u, now)
	}
	var stale []*Entity
	for id, e := range r.entities {
		if _, ok := keep[id]; !ok {
			stale = append(stale, e)
			delete(r.entities, id)
		}
	}
	after := len(r.entities)
	r.mu.Unlock()

	for _, e := range stale {
		e.release()
	}
	log.Debug("Seeded %d remote players", after)
	r.countChanged(before, after)
}

// Upsert creates the entity on first sighting and updates it afterwards.
func (r *Registry) Upsert(u PlayerUpdate) {
	if u.ID == "" || u.ID == r.opts.LocalPlayerID {
		return
	}
	now := r.opts.Now()

	r.mu.Lock()
	e, ok := r.entities[u.ID]
	if !ok {
		r.entities[u.ID] = newEntity(r, u, now)
		count := len(r.entities)
		r.mu.Unlock()
		log.Debug("Added remote player %s (%s)", u.ID, u.Name)
		r.countChanged(count-1, count)
		return
	}
	r.mu.Unlock()

	e.apply(u, now)
}

// Remove releases and forgets the entity. It reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.entities[id]
	if ok {
		delete(r.entities, id)
	}
	count := len(r.entities)
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.release()
	log.Debug("Removed remote player %s", id)
	r.countChanged(count+1, count)
	return true
}

// Rename updates the display name of a tracked entity.
func (r *Registry) Rename(id, name string) bool {
	e, ok := r.Get(id)
	if !ok {
		return false
	}
	e.rename(name)
	return true
}

// Sweep removes entities not updated for longer than maxAge and returns their ids.
func (r *Registry) Sweep(maxAge time.Duration) []string {
	now := r.opts.Now()

	r.mu.Lock()
	before := len(r.entities)
	var expired []*Entity
	for id, e := range r.entities {
		if now.Sub(e.LastUpdate()) > maxAge {
			expired = append(expired, e)
			delete(r.entities, id)
		}
	}
	after := len(r.entities)
	r.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, e := range expired {
		e.release()
		ids = append(ids, e.id)
	}
	sort.Strings(ids)
	if len(ids) > 0 {
		log.Info("Swept %d inactive remote players: %v", len(ids), ids)
	}
	r.countChanged(before, after)
	return ids
}

// Clear releases every entity.
func (r *Registry) Clear() {
	r.mu.Lock()
	before := len(r.entities)
	entities := r.entities
	r.entities = make(map[string]*Entity)
	r.mu.Unlock()

	for _, e := range entities {
		e.release()
	}
	r.countChanged(before, 0)
}

func (r *Registry) Get(id string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	return e, ok
}

// GetAll returns the tracked entities ordered by id.
func (r *Registry) GetAll() []*Entity {
	r.mu.RLock()
	out := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

func (r *Registry) countChanged(before, after int) {
	if before == after || r.opts.OnCountChanged == nil {
		return
	}
	r.opts.OnCountChanged(after)
}
