// Package h3mapper maps listing coordinates and search boxes onto H3 cells
// for the result cache index.
package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/listing-search/internal/geo"
)

var ErrTooManyCells = errors.New("h3 cover exceeds cell limit")

type Mapper struct {
	res      int
	maxCells int
}

func New(res, maxCells int) (*Mapper, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if maxCells <= 0 {
		return nil, fmt.Errorf("max cells must be positive, got %d", maxCells)
	}
	return &Mapper{res: res, maxCells: maxCells}, nil
}

func (m *Mapper) Res() int { return m.res }

// CellForPoint returns the cell containing the coordinate.
func (m *Mapper) CellForPoint(c geo.Coordinate) (string, error) {
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: c.Latitude, Lng: c.Longitude}, m.res)
	if err != nil {
		return "", fmt.Errorf("h3 cell for point: %w", err)
	}
	return cell.String(), nil
}

// boxPad widens a zero-width box side so a line-shaped box still has area to
// fill.
const boxPad = 1e-7

// CoverBox returns a sorted set of cells such that every point inside the box
// falls in one of them: every cell overlapping the box, grown by one ring so
// points on a cell edge resolve into the cover either way.
func (m *Mapper) CoverBox(box geo.BoundingBox) ([]string, error) {
	seed := make(map[h3.Cell]struct{})
	if box.MinLat == box.MaxLat && box.MinLon == box.MaxLon {
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: box.MinLat, Lng: box.MinLon}, m.res)
		if err != nil {
			return nil, fmt.Errorf("h3 point cell: %w", err)
		}
		seed[cell] = struct{}{}
	} else {
		filled, err := m.overlapping(box)
		if err != nil {
			return nil, err
		}
		for _, c := range filled {
			seed[c] = struct{}{}
		}
	}

	out := make(map[string]struct{}, len(seed)*3)
	for c := range seed {
		ring, err := h3.GridDisk(c, 1)
		if err != nil {
			return nil, fmt.Errorf("h3 grid disk: %w", err)
		}
		for _, n := range ring {
			out[n.String()] = struct{}{}
		}
		if len(out) > m.maxCells {
			return nil, fmt.Errorf("%w: > %d", ErrTooManyCells, m.maxCells)
		}
	}

	cells := make([]string, 0, len(out))
	for c := range out {
		cells = append(cells, c)
	}
	sort.Strings(cells)
	return cells, nil
}

// overlapping returns every cell that touches the box, not only those whose
// center lies inside it.
func (m *Mapper) overlapping(box geo.BoundingBox) ([]h3.Cell, error) {
	if box.MinLat == box.MaxLat {
		box.MinLat, box.MaxLat = box.MinLat-boxPad, box.MaxLat+boxPad
	}
	if box.MinLon == box.MaxLon {
		box.MinLon, box.MaxLon = box.MinLon-boxPad, box.MaxLon+boxPad
	}
	corners := box.Polygon()
	loop := make(h3.GeoLoop, 0, len(corners))
	for _, c := range corners {
		loop = append(loop, h3.LatLng{Lat: c.Latitude, Lng: c.Longitude})
	}
	filled, err := h3.PolygonToCellsExperimental(h3.GeoPolygon{GeoLoop: loop}, m.res, h3.ContainmentOverlapping)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	if len(filled) > m.maxCells {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyCells, len(filled), m.maxCells)
	}
	return filled, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
