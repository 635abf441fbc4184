package localplayer

import (
	"context"
	"math"
	"time"

	"github.com/cbodonnell/roadtrip/pkg/geo"
	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/cbodonnell/roadtrip/pkg/messages"
)

const metersPerDegreeLat = 111320.0

// CircularRoute drives around Center once per Period.
type CircularRoute struct {
	Center       geo.Point
	RadiusMeters float64
	Period       time.Duration
	Start        time.Time
}

// PoseAt returns where the route is at t, heading along the circle.
func (r CircularRoute) PoseAt(t time.Time) Pose {
	angle := 0.0
	if r.Period > 0 {
		angle = 2 * math.Pi * float64(t.Sub(r.Start)%r.Period) / float64(r.Period)
	}
	dNorth := r.RadiusMeters * math.Sin(angle)
	dEast := r.RadiusMeters * math.Cos(angle)
	lat := r.Center.Lat + dNorth/metersPerDegreeLat
	lng := r.Center.Lng + dEast/(metersPerDegreeLat*math.Cos(r.Center.Lat*math.Pi/180))
	return Pose{
		Point: geo.Point{Lng: lng, Lat: lat, Elevation: r.Center.Elevation},
		// counter-clockwise travel is perpendicular to the radius
		Rotation: messages.Rotation{Y: angle + math.Pi/2},
		At:       t,
	}
}

// Drive feeds the route into the tracker every interval until ctx is done.
func Drive(ctx context.Context, tracker *Tracker, route CircularRoute, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := tracker.Observe(route.PoseAt(now)); err != nil {
				log.Warn("Failed to observe route pose: %v", err)
			}
		}
	}
}
