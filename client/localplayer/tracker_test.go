package localplayer

import (
	"math"
	"testing"
	"time"

	"github.com/cbodonnell/roadtrip/pkg/geo"
	"github.com/cbodonnell/roadtrip/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTracker_SnapshotBeforeFirstPose(t *testing.T) {
	tracker := NewTracker(NewTrackerOptions{ModelID: "car-1", EntityKind: "car"})
	_, ok := tracker.Snapshot()
	assert.False(t, ok)
}

func TestTracker_AccumulatesDistanceAndSpeed(t *testing.T) {
	now := start
	tracker := NewTracker(NewTrackerOptions{
		ModelID:    "car-1",
		EntityKind: "car",
		Now:        func() time.Time { return now },
	})

	a := geo.Point{Lng: 13.40, Lat: 52.52}
	b := geo.Point{Lng: 13.40, Lat: 52.521}
	require.NoError(t, tracker.Observe(Pose{Point: a, At: start}))
	now = start.Add(10 * time.Second)
	require.NoError(t, tracker.Observe(Pose{Point: b, Rotation: messages.Rotation{Y: 1.5}, At: now}))

	meters := geo.DistanceMeters(a, b)
	assert.InDelta(t, 111, meters, 2)

	frame, ok := tracker.Snapshot()
	require.True(t, ok)
	assert.Equal(t, b.Coordinates(), frame.Coordinates)
	assert.Equal(t, 1.5, frame.Rotation.Y)
	assert.Equal(t, now.UnixMilli(), frame.Timestamp)
	assert.InDelta(t, meters/1000, frame.KilometersDriven, 1e-9)
	assert.InDelta(t, meters/1000/(10.0/3600), frame.CurrentSpeed, 1e-6)
	assert.Equal(t, "car-1", frame.ModelType)
	assert.Equal(t, "car", frame.StateType)
}

func TestTracker_SpeedDropsWhenIdle(t *testing.T) {
	now := start
	tracker := NewTracker(NewTrackerOptions{IdleAfter: time.Second, Now: func() time.Time { return now }})

	require.NoError(t, tracker.Observe(Pose{Point: geo.Point{Lng: 0, Lat: 0}, At: start}))
	now = start.Add(time.Second)
	require.NoError(t, tracker.Observe(Pose{Point: geo.Point{Lng: 0, Lat: 0.001}, At: now}))
	assert.Greater(t, tracker.Speed(), 0.0)

	now = now.Add(2 * time.Second)
	assert.Equal(t, 0.0, tracker.Speed())
}

func TestTracker_RejectsOlderPoses(t *testing.T) {
	tracker := NewTracker(NewTrackerOptions{})
	require.NoError(t, tracker.Observe(Pose{Point: geo.Point{Lng: 1, Lat: 1}, At: start.Add(time.Second)}))
	assert.Error(t, tracker.Observe(Pose{Point: geo.Point{Lng: 2, Lat: 2}, At: start}))
}

func TestTracker_TeleportIsNotCounted(t *testing.T) {
	tracker := NewTracker(NewTrackerOptions{MaxStepMeters: 100})
	require.NoError(t, tracker.Observe(Pose{Point: geo.Point{Lng: 0, Lat: 0}, At: start}))
	require.NoError(t, tracker.Observe(Pose{Point: geo.Point{Lng: 1, Lat: 1}, At: start.Add(time.Second)}))
	assert.Equal(t, 0.0, tracker.Kilometers())
}

func TestTracker_ObserveCoordinates(t *testing.T) {
	tracker := NewTracker(NewTrackerOptions{})
	assert.ErrorIs(t, tracker.ObserveCoordinates([]float64{200, 0}, messages.Rotation{}, start), geo.ErrInvalidCoordinates)
	require.NoError(t, tracker.ObserveCoordinates([]float64{1, 2, 3}, messages.Rotation{}, start))

	frame, ok := tracker.Snapshot()
	require.True(t, ok)
	assert.Equal(t, [3]float64{1, 2, 3}, frame.Coordinates)
}

func TestTracker_SettersShowUpInSnapshot(t *testing.T) {
	tracker := NewTracker(NewTrackerOptions{ModelID: "car-1", EntityKind: "car"})
	require.NoError(t, tracker.Observe(Pose{Point: geo.Point{}, At: start}))

	tracker.SetModel("walker", "pedestrian")
	tracker.SetAnimation("walk")
	tracker.SetKilometers(12.5)

	frame, ok := tracker.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "walker", frame.ModelType)
	assert.Equal(t, "pedestrian", frame.StateType)
	assert.Equal(t, "walk", frame.AnimationState)
	assert.Equal(t, 12.5, frame.KilometersDriven)
}

func TestCircularRoute_PoseAt(t *testing.T) {
	route := CircularRoute{
		Center:       geo.Point{Lng: -122.42, Lat: 37.77},
		RadiusMeters: 200,
		Period:       time.Minute,
		Start:        start,
	}

	for _, offset := range []time.Duration{0, 10 * time.Second, 37 * time.Second, 90 * time.Second} {
		pose := route.PoseAt(start.Add(offset))
		assert.InDelta(t, 200, geo.DistanceMeters(route.Center, pose.Point), 2, "offset %s", offset)
	}

	quarter := route.PoseAt(start.Add(15 * time.Second))
	assert.Greater(t, quarter.Point.Lat, route.Center.Lat)
	assert.InDelta(t, math.Pi, quarter.Rotation.Y, 1e-9)

	// one full period later the pose repeats
	assert.Equal(t, route.PoseAt(start.Add(5*time.Second)).Point, route.PoseAt(start.Add(65*time.Second)).Point)
}
