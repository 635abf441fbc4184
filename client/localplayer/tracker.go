package localplayer

import (
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/roadtrip/pkg/geo"
	"github.com/cbodonnell/roadtrip/pkg/messages"
)

const (
	// DefaultMaxStepMeters discards teleports from the odometer.
	DefaultMaxStepMeters = 500.0
	// DefaultIdleAfter is how long without a pose before the reported speed drops to zero.
	DefaultIdleAfter = 2 * time.Second
)

// Pose is a position sample reported by the host.
type Pose struct {
	Point    geo.Point
	Rotation messages.Rotation
	At       time.Time
}

type NewTrackerOptions struct {
	ModelID       string
	EntityKind    string
	MaxStepMeters float64
	IdleAfter     time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Tracker holds the local player's latest state for the broadcaster.
type Tracker struct {
	odometer  *geo.Odometer
	idleAfter time.Duration
	now       func() time.Time

	mu             sync.RWMutex
	pose           Pose
	hasPose        bool
	speed          float64
	modelID        string
	entityKind     string
	animationState string
}

func NewTracker(opts NewTrackerOptions) *Tracker {
	if opts.MaxStepMeters <= 0 {
		opts.MaxStepMeters = DefaultMaxStepMeters
	}
	if opts.IdleAfter <= 0 {
		opts.IdleAfter = DefaultIdleAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		odometer:   geo.NewOdometer(opts.MaxStepMeters),
		idleAfter:  opts.IdleAfter,
		now:        opts.Now,
		modelID:    opts.ModelID,
		entityKind: opts.EntityKind,
	}
}

// Observe records a pose. Samples older than the current one are rejected.
func (t *Tracker) Observe(pose Pose) error {
	if pose.At.IsZero() {
		pose.At = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasPose && pose.At.Before(t.pose.At) {
		return fmt.Errorf("pose at %s is older than %s", pose.At.Format(time.RFC3339Nano), t.pose.At.Format(time.RFC3339Nano))
	}

	km := t.odometer.Add(pose.Point)
	if t.hasPose {
		if dt := pose.At.Sub(t.pose.At); dt > 0 {
			t.speed = km / dt.Hours()
		}
	}
	t.pose = pose
	t.hasPose = true
	return nil
}

// ObserveCoordinates is Observe for raw (lng, lat, elevation) input.
func (t *Tracker) ObserveCoordinates(coordinates []float64, rotation messages.Rotation, at time.Time) error {
	point, err := geo.PointFromCoordinates(coordinates)
	if err != nil {
		return err
	}
	return t.Observe(Pose{Point: point, Rotation: rotation, At: at})
}

func (t *Tracker) SetModel(modelID, entityKind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modelID = modelID
	t.entityKind = entityKind
}

func (t *Tracker) SetAnimation(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.animationState = state
}

// SetKilometers restores the distance the server has on record.
func (t *Tracker) SetKilometers(km float64) {
	t.odometer.Set(km)
}

func (t *Tracker) Kilometers() float64 {
	return t.odometer.Kilometers()
}

// Speed is the current speed in km/h.
func (t *Tracker) Speed() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.speedLocked()
}

func (t *Tracker) speedLocked() float64 {
	if !t.hasPose || t.now().Sub(t.pose.At) > t.idleAfter {
		return 0
	}
	return t.speed
}

// Snapshot builds the frame to broadcast. ok is false until the first pose.
func (t *Tracker) Snapshot() (messages.OutboundFrame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.hasPose {
		return messages.OutboundFrame{}, false
	}
	return messages.OutboundFrame{
		Coordinates:      t.pose.Point.Coordinates(),
		Rotation:         t.pose.Rotation,
		Timestamp:        t.pose.At.UnixMilli(),
		CurrentSpeed:     t.speedLocked(),
		KilometersDriven: t.odometer.Kilometers(),
		ModelType:        t.modelID,
		AnimationState:   t.animationState,
		StateType:        t.entityKind,
	}, true
}
