package remote

import (
	"fmt"
	"time"

	"github.com/cbodonnell/roadtrip/client/render"
)

// LoadState tracks an entity's model load.
type LoadState int

const (
	LoadStateUnloaded LoadState = iota
	LoadStateLoading
	LoadStateLoaded
	LoadStateFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadStateUnloaded:
		return "unloaded"
	case LoadStateLoading:
		return "loading"
	case LoadStateLoaded:
		return "loaded"
	case LoadStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LoadState) UnmarshalText(text []byte) error {
	for _, candidate := range []LoadState{LoadStateUnloaded, LoadStateLoading, LoadStateLoaded, LoadStateFailed} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown load state %q", text)
}

// PlayerUpdate is one observation of a remote player, from a snapshot or a batch.
type PlayerUpdate struct {
	ID        string
	Name      string
	Transform render.Transform
	// Timestamp is the server sample time in unix milliseconds. Zero disables fencing.
	Timestamp        int64
	CurrentSpeed     float64
	KilometersDriven float64
	EntityKind       string
	ModelID          string
	AnimationTag     string
}

// EntityState is a point-in-time copy of an entity.
type EntityState struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Transform        render.Transform `json:"transform"`
	CurrentSpeed     float64          `json:"currentSpeed"`
	KilometersDriven float64          `json:"kilometersDriven"`
	EntityKind       string           `json:"entityKind"`
	ModelID          string           `json:"modelId"`
	AnimationTag     string           `json:"animationTag"`
	SampleTimestamp  int64            `json:"sampleTimestamp"`
	LastUpdate       time.Time        `json:"lastUpdate"`
	LoadState        LoadState        `json:"loadState"`
	LoadGeneration   uint64           `json:"loadGeneration"`
	HasVisual        bool             `json:"hasVisual"`
}
