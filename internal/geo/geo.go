package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the spherical Earth approximation used by Distance.
const EarthRadiusKm = 6371.0

// ErrInvalidCoordinate is returned for out-of-range or non-finite lat/lng.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is a finite, in-range coordinate.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Distance returns the great-circle distance between a and b in kilometers
// using the haversine formula.
func Distance(a, b Point) (float64, error) {
	if !a.Valid() {
		return 0, fmt.Errorf("%w: (%v,%v)", ErrInvalidCoordinate, a.Lat, a.Lng)
	}
	if !b.Valid() {
		return 0, fmt.Errorf("%w: (%v,%v)", ErrInvalidCoordinate, b.Lat, b.Lng)
	}
	return haversine(a.Lat, a.Lng, b.Lat, b.Lng), nil
}

// MustDistance is Distance for callers that already validated their inputs.
func MustDistance(a, b Point) float64 {
	return haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Polygon is a closed region given as an ordered vertex ring.
type Polygon struct {
	Name     string  `json:"name,omitempty"`
	Vertices []Point `json:"vertices"`
}

// Contains reports whether p falls inside the polygon (ray casting on the
// lat/lng plane; adequate for delivery-zone sized regions).
func (pg Polygon) Contains(p Point) bool {
	n := len(pg.Vertices)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := pg.Vertices[i], pg.Vertices[j]
		if (vi.Lng > p.Lng) != (vj.Lng > p.Lng) &&
			p.Lat < (vj.Lat-vi.Lat)*(p.Lng-vi.Lng)/(vj.Lng-vi.Lng)+vi.Lat {
			inside = !inside
		}
		j = i
	}
	return inside
}
