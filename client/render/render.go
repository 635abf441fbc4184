package render

// Handle identifies a visual owned by a Renderer.
type Handle uint64

type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Transform places a visual. Coordinates are (lng, lat, elevation).
type Transform struct {
	Coordinates [3]float64 `json:"coordinates"`
	Rotation    Rotation   `json:"rotation"`
}

// VisualSpec describes the visual to create for an entity.
type VisualSpec struct {
	EntityID string
	ModelID  string
	ModelURL string
	Scale    float64
	// Label is drawn above the visual. Empty hides it.
	Label string
	// Animation is started right after creation when non-empty.
	Animation string
}

// Renderer is the boundary to whatever draws remote players.
// Every Handle returned by CreateVisual must be passed to RemoveVisual exactly once.
type Renderer interface {
	CreateVisual(spec VisualSpec, transform Transform) (Handle, error)
	UpdateTransform(h Handle, transform Transform)
	PlayAnimation(h Handle, animation string)
	SetLabel(h Handle, label string)
	RemoveVisual(h Handle)
}
