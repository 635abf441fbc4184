package geo

import (
	"errors"
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Point is a WGS84 (EPSG:4326) location with optional elevation in meters.
type Point struct {
	Lng       float64
	Lat       float64
	Elevation float64
}

// PointFromCoordinates parses a (lng, lat[, elevation]) slice as sent on the wire.
func PointFromCoordinates(coords []float64) (Point, error) {
	if len(coords) < 2 {
		return Point{}, ErrInvalidCoordinates
	}
	for _, c := range coords {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return Point{}, ErrInvalidCoordinates
		}
	}
	p := Point{Lng: coords[0], Lat: coords[1]}
	if len(coords) > 2 {
		p.Elevation = coords[2]
	}
	if p.Lng < -180 || p.Lng > 180 || p.Lat < -90 || p.Lat > 90 {
		return Point{}, ErrInvalidCoordinates
	}
	return p, nil
}

// Coordinates returns the wire form of p.
func (p Point) Coordinates() [3]float64 {
	return [3]float64{p.Lng, p.Lat, p.Elevation}
}

var webMercator = wgs84.EPSG().Transform(4326, 3857)

// To3857 projects p into web mercator meters.
func (p Point) To3857() geom.XY {
	x, y, _ := webMercator(p.Lng, p.Lat, 0)
	return geom.XY{X: x, Y: y}
}

// DistanceMeters approximates the ground distance between a and b. Mercator
// lengths are scaled by the cosine of the mean latitude.
func DistanceMeters(a, b Point) float64 {
	pa, pb := a.To3857(), b.To3857()
	seq := geom.NewSequence([]float64{pa.X, pa.Y, pb.X, pb.Y}, geom.DimXY)
	projected := math.Hypot(pb.X-pa.X, pb.Y-pa.Y)
	// coincident points are rejected as a line string
	if ls, err := geom.NewLineString(seq); err == nil {
		projected = ls.Length()
	}
	meanLat := (a.Lat + b.Lat) / 2 * math.Pi / 180
	return projected * math.Cos(meanLat)
}

// PathLengthKilometers sums DistanceMeters over consecutive points.
func PathLengthKilometers(points []Point) float64 {
	var meters float64
	for i := 1; i < len(points); i++ {
		meters += DistanceMeters(points[i-1], points[i])
	}
	return meters / 1000
}
