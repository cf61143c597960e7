package geo

import (
	"fmt"
	"math"
)

// Position is a WGS84 coordinate pair in degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ErrInvalidCoordinate reports a non-finite or out-of-range coordinate.
var ErrInvalidCoordinate = fmt.Errorf("invalid coordinate")

// earthRadiusMeters is the WGS84 equatorial radius used by the haversine
// formula, matching the distances guard devices report.
const earthRadiusMeters = 6378137.0

// Validate rejects non-finite or out-of-range coordinates.
func (p Position) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) ||
		math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinate)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, p.Longitude)
	}
	return nil
}

// DistanceMeters returns the great-circle distance between two positions
// using the haversine formula.
func DistanceMeters(p1, p2 Position) (float64, error) {
	if err := p1.Validate(); err != nil {
		return 0, err
	}
	if err := p2.Validate(); err != nil {
		return 0, err
	}

	lat1 := p1.Latitude * math.Pi / 180
	lat2 := p2.Latitude * math.Pi / 180
	dLat := (p2.Latitude - p1.Latitude) * math.Pi / 180
	dLon := (p2.Longitude - p1.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c, nil
}

// WithinRadius reports whether reported is no farther than radiusMeters
// from center.
func WithinRadius(reported, center Position, radiusMeters float64) (bool, error) {
	if radiusMeters <= 0 {
		return false, fmt.Errorf("radius must be positive, got %v", radiusMeters)
	}
	d, err := DistanceMeters(reported, center)
	if err != nil {
		return false, err
	}
	return d <= radiusMeters, nil
}
