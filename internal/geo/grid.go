package geo

import (
	"math"
	"sort"
)

// degPerKmLat is the rough latitude span of one kilometer.
const degPerKmLat = 1.0 / 111.0

// GridIndex partitions the plane into fixed-size cells for sub-linear
// proximity queries. Cell size is in degrees; the default suits city-scale
// delivery areas. Not safe for concurrent mutation.
type GridIndex struct {
	cellDeg float64
	cells   map[cellKey][]gridPoint
	count   int
}

// DefaultCellDeg is roughly a 1 km cell at mid latitudes.
const DefaultCellDeg = 0.01

type cellKey struct{ row, col int }

type gridPoint struct {
	id string
	p  Point
}

// NewGridIndex returns an index with the given cell size in degrees.
// cellDeg <= 0 selects DefaultCellDeg.
func NewGridIndex(cellDeg float64) *GridIndex {
	if cellDeg <= 0 {
		cellDeg = DefaultCellDeg
	}
	return &GridIndex{cellDeg: cellDeg, cells: make(map[cellKey][]gridPoint)}
}

func (g *GridIndex) keyFor(p Point) cellKey {
	return cellKey{
		row: int(math.Floor(p.Lat / g.cellDeg)),
		col: int(math.Floor(p.Lng / g.cellDeg)),
	}
}

// Insert places a point into its cell in O(1).
func (g *GridIndex) Insert(id string, p Point) error {
	if !p.Valid() {
		return ErrInvalidCoordinate
	}
	k := g.keyFor(p)
	g.cells[k] = append(g.cells[k], gridPoint{id: id, p: p})
	g.count++
	return nil
}

// Len reports the number of indexed points.
func (g *GridIndex) Len() int { return g.count }

// QueryRadius returns the IDs of points within radiusKm great-circle
// distance of center. Only cells intersecting the radius bounding box are
// examined; candidates are filtered by true haversine distance. Results are
// sorted by ID for deterministic output.
func (g *GridIndex) QueryRadius(center Point, radiusKm float64) ([]string, error) {
	if !center.Valid() {
		return nil, ErrInvalidCoordinate
	}
	if radiusKm < 0 {
		return nil, nil
	}
	latDelta := radiusKm * degPerKmLat
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < 1e-6 {
		cosLat = 1e-6 // polar degenerate case: scan the full longitude range
	}
	lngDelta := radiusKm * degPerKmLat / cosLat

	var out []string
	g.scanBox(Point{Lat: center.Lat - latDelta, Lng: center.Lng - lngDelta},
		Point{Lat: center.Lat + latDelta, Lng: center.Lng + lngDelta},
		func(gp gridPoint) {
			if haversine(center.Lat, center.Lng, gp.p.Lat, gp.p.Lng) <= radiusKm {
				out = append(out, gp.id)
			}
		})
	sort.Strings(out)
	return out, nil
}

// QueryBoundingBox returns the IDs of points inside the [min, max] box,
// examining only intersecting cells. Results are sorted by ID.
func (g *GridIndex) QueryBoundingBox(min, max Point) ([]string, error) {
	if !min.Valid() || !max.Valid() {
		return nil, ErrInvalidCoordinate
	}
	var out []string
	g.scanBox(min, max, func(gp gridPoint) {
		if gp.p.Lat >= min.Lat && gp.p.Lat <= max.Lat && gp.p.Lng >= min.Lng && gp.p.Lng <= max.Lng {
			out = append(out, gp.id)
		}
	})
	sort.Strings(out)
	return out, nil
}

func (g *GridIndex) scanBox(min, max Point, visit func(gridPoint)) {
	minKey := g.keyFor(min)
	maxKey := g.keyFor(max)
	for row := minKey.row; row <= maxKey.row; row++ {
		for col := minKey.col; col <= maxKey.col; col++ {
			for _, gp := range g.cells[cellKey{row, col}] {
				visit(gp)
			}
		}
	}
}
