// Package ingest parses bulk listing uploads. Files are CSV without a header
// row; every row must have the full column set.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/geo"
)

const (
	chairFields  = 13
	estateFields = 12
)

var ErrEmpty = errors.New("no rows")

type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

func readRows(r io.Reader, fields int, fn func(rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fields
	cr.ReuseRecord = true
	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return &RowError{Line: pe.Line, Err: pe.Err}
			}
			return err
		}
		line, _ := cr.FieldPos(0)
		if err := fn(rec); err != nil {
			return &RowError{Line: line, Err: err}
		}
		n++
	}
	if n == 0 {
		return ErrEmpty
	}
	return nil
}

type fieldParser struct {
	rec []string
	err error
}

func (p *fieldParser) str(i int) string { return p.rec[i] }

func (p *fieldParser) int(i int, name string) int64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(strings.TrimSpace(p.rec[i]), 10, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", name, err)
	}
	return v
}

func (p *fieldParser) float(i int, name string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(p.rec[i]), 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", name, err)
	}
	return v
}

// Chairs reads id, name, description, thumbnail, price, height, width,
// depth, color, features, kind, popularity, stock.
func Chairs(r io.Reader) ([]model.Chair, error) {
	var out []model.Chair
	err := readRows(r, chairFields, func(rec []string) error {
		p := fieldParser{rec: rec}
		c := model.Chair{
			ID:          p.int(0, "id"),
			Name:        p.str(1),
			Description: p.str(2),
			Thumbnail:   p.str(3),
			Price:       p.int(4, "price"),
			Height:      p.int(5, "height"),
			Width:       p.int(6, "width"),
			Depth:       p.int(7, "depth"),
			Color:       p.str(8),
			Features:    p.str(9),
			Kind:        p.str(10),
			Popularity:  p.int(11, "popularity"),
			Stock:       p.int(12, "stock"),
		}
		if p.err != nil {
			return p.err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Estates reads id, name, description, thumbnail, address, latitude,
// longitude, rent, door_height, door_width, features, popularity.
func Estates(r io.Reader) ([]model.Estate, error) {
	var out []model.Estate
	err := readRows(r, estateFields, func(rec []string) error {
		p := fieldParser{rec: rec}
		e := model.Estate{
			ID:          p.int(0, "id"),
			Name:        p.str(1),
			Description: p.str(2),
			Thumbnail:   p.str(3),
			Address:     p.str(4),
			Latitude:    p.float(5, "latitude"),
			Longitude:   p.float(6, "longitude"),
			Rent:        p.int(7, "rent"),
			DoorHeight:  p.int(8, "door_height"),
			DoorWidth:   p.int(9, "door_width"),
			Features:    p.str(10),
			Popularity:  p.int(11, "popularity"),
		}
		if p.err != nil {
			return p.err
		}
		if err := (geo.Coordinate{Latitude: e.Latitude, Longitude: e.Longitude}).Validate(); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
