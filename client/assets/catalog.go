package assets

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrCatalogNotReady is returned by lookups before the catalog has been populated.
	ErrCatalogNotReady = errors.New("model catalog not ready")
	// ErrModelNotFound is returned when a populated catalog has no such model.
	ErrModelNotFound = errors.New("model not found")
)

// Model describes a loadable vehicle or character asset.
type Model struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Animations []string `json:"animations,omitempty"`
	Scale      float64  `json:"scale,omitempty"`
}

// Animated reports whether the model carries animation clips.
func (m Model) Animated() bool {
	return len(m.Animations) > 0
}

func (m Model) HasAnimation(name string) bool {
	for _, a := range m.Animations {
		if a == name {
			return true
		}
	}
	return false
}

// Catalog is the set of models known to the client. It starts empty and not
// ready; remote players may ask for models before it is populated.
type Catalog struct {
	mu     sync.RWMutex
	ready  bool
	models map[string]Model
}

func NewCatalog() *Catalog {
	return &Catalog{models: make(map[string]Model)}
}

// Populate replaces the catalog contents and marks it ready.
func (c *Catalog) Populate(models []Model) error {
	next := make(map[string]Model, len(models))
	for _, m := range models {
		if m.ID == "" {
			return fmt.Errorf("model with url %q has no id", m.URL)
		}
		if _, ok := next[m.ID]; ok {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		next[m.ID] = m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = next
	c.ready = true
	return nil
}

func (c *Catalog) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Catalog) Lookup(id string) (Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return Model{}, ErrCatalogNotReady
	}
	m, ok := c.models[id]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrModelNotFound, id)
	}
	return m, nil
}

// IDs returns the known model ids in sorted order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.models))
	for id := range c.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
