package render

import (
	"sort"
	"sync"

	"github.com/cbodonnell/roadtrip/pkg/log"
)

// Visual is the state a TrackingRenderer keeps per handle.
type Visual struct {
	Handle    Handle     `json:"handle"`
	Spec      VisualSpec `json:"-"`
	EntityID  string     `json:"entityId"`
	ModelID   string     `json:"modelId"`
	Transform Transform  `json:"transform"`
	Animation string     `json:"animation,omitempty"`
	Label     string     `json:"label,omitempty"`
}

// TrackingRenderer is a headless Renderer that records live visuals.
type TrackingRenderer struct {
	mu        sync.Mutex
	nextID    Handle
	visuals   map[Handle]*Visual
	created   int
	removed   int
	createErr error
}

func NewTrackingRenderer() *TrackingRenderer {
	return &TrackingRenderer{visuals: make(map[Handle]*Visual)}
}

// FailCreates makes subsequent CreateVisual calls return err. Nil restores normal behaviour.
func (r *TrackingRenderer) FailCreates(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = err
}

func (r *TrackingRenderer) CreateVisual(spec VisualSpec, transform Transform) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return 0, r.createErr
	}
	r.nextID++
	h := r.nextID
	r.visuals[h] = &Visual{
		Handle:    h,
		Spec:      spec,
		EntityID:  spec.EntityID,
		ModelID:   spec.ModelID,
		Transform: transform,
		Animation: spec.Animation,
		Label:     spec.Label,
	}
	r.created++
	log.Trace("Created visual %d for %s (%s)", h, spec.EntityID, spec.ModelID)
	return h, nil
}

func (r *TrackingRenderer) UpdateTransform(h Handle, transform Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.visuals[h]; ok {
		v.Transform = transform
	}
}

func (r *TrackingRenderer) PlayAnimation(h Handle, animation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.visuals[h]; ok {
		v.Animation = animation
	}
}

func (r *TrackingRenderer) SetLabel(h Handle, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.visuals[h]; ok {
		v.Label = label
	}
}

func (r *TrackingRenderer) RemoveVisual(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visuals[h]; !ok {
		log.Warn("Remove of unknown visual %d", h)
		return
	}
	delete(r.visuals, h)
	r.removed++
	log.Trace("Removed visual %d", h)
}

// Get returns a copy of the visual for h.
func (r *TrackingRenderer) Get(h Handle) (Visual, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visuals[h]
	if !ok {
		return Visual{}, false
	}
	return *v, true
}

// Visuals returns copies of all live visuals ordered by handle.
func (r *TrackingRenderer) Visuals() []Visual {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Visual, 0, len(r.visuals))
	for _, v := range r.visuals {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (r *TrackingRenderer) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visuals)
}

// Counts returns how many visuals were created and removed so far.
func (r *TrackingRenderer) Counts() (created, removed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created, r.removed
}
