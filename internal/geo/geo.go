// Package geo holds the coordinate, polygon and bounding box types used by
// polygon search, built on go-geom.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

var (
	ErrEmptyPolygon    = errors.New("polygon has no coordinates")
	ErrCoordinateRange = errors.New("coordinate out of range")
)

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects non-finite values, latitudes outside [-90, 90] and
// longitudes outside [-180, 180].
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v", ErrCoordinateRange, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v", ErrCoordinateRange, c.Longitude)
	}
	return nil
}

// Polygon is an ordered ring of coordinates. The ring is closed implicitly.
type Polygon []Coordinate

type BoundingBox struct {
	MinLon, MaxLon float64
	MinLat, MaxLat float64
}

// flatRing returns the ring as XY (lon, lat) pairs with the first point
// repeated at the end.
func (p Polygon) flatRing() []float64 {
	flat := make([]float64, 0, 2*len(p)+2)
	for _, c := range p {
		flat = append(flat, c.Longitude, c.Latitude)
	}
	if n := len(p); n > 0 && p[0] != p[n-1] {
		flat = append(flat, p[0].Longitude, p[0].Latitude)
	}
	return flat
}

func (p Polygon) geom() *geom.Polygon {
	ring := p.flatRing()
	return geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)})
}

// Bounds returns the tightest box covering every coordinate.
func (p Polygon) Bounds() (BoundingBox, error) {
	if len(p) == 0 {
		return BoundingBox{}, ErrEmptyPolygon
	}
	b := p.geom().Bounds()
	return BoundingBox{
		MinLon: b.Min(0),
		MaxLon: b.Max(0),
		MinLat: b.Min(1),
		MaxLat: b.Max(1),
	}, nil
}

// Contains reports whether the point lies strictly inside the ring. Points
// on an edge or vertex are outside, matching ST_Contains.
func (p Polygon) Contains(c Coordinate) bool {
	if p.Degenerate() {
		return false
	}
	loc := xy.LocatePointInRing(geom.XY, geom.Coord{c.Longitude, c.Latitude}, p.flatRing())
	return loc == location.Interior
}

// Degenerate reports whether the ring has fewer than three distinct
// vertices and so encloses no area.
func (p Polygon) Degenerate() bool {
	distinct := make(map[Coordinate]struct{}, 3)
	for _, c := range p {
		distinct[c] = struct{}{}
		if len(distinct) >= 3 {
			return false
		}
	}
	return true
}

// WKT encodes the polygon for a geometry query parameter.
func (p Polygon) WKT() (string, error) {
	if len(p) == 0 {
		return "", ErrEmptyPolygon
	}
	s, err := wkt.Marshal(p.geom())
	if err != nil {
		return "", fmt.Errorf("encode polygon: %w", err)
	}
	return s, nil
}

// Contains is inclusive on every edge.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Latitude >= b.MinLat && c.Latitude <= b.MaxLat &&
		c.Longitude >= b.MinLon && c.Longitude <= b.MaxLon
}

func (b BoundingBox) Polygon() Polygon {
	return Polygon{
		{Longitude: b.MinLon, Latitude: b.MinLat},
		{Longitude: b.MaxLon, Latitude: b.MinLat},
		{Longitude: b.MaxLon, Latitude: b.MaxLat},
		{Longitude: b.MinLon, Latitude: b.MaxLat},
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("lon[%f,%f] lat[%f,%f]", b.MinLon, b.MaxLon, b.MinLat, b.MaxLat)
}
