// Package catalog holds the externally defined search conditions: the range
// buckets per dimension, and the document itself for clients building forms.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
)

// Unbounded marks an open side of a range bucket.
const Unbounded int64 = -1

var ErrInvalidCatalog = errors.New("invalid condition catalog")

type Range struct {
	ID  int   `json:"id"`
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// RangeField binds a catalog dimension to its query parameter and column.
type RangeField struct {
	Key    string
	Param  string
	Column string
}

type Field struct {
	Param  string
	Column string
}

// Schema describes how one collection's condition document maps onto
// request parameters and stored columns. Range order is the predicate order.
type Schema struct {
	Collection  string
	Ranges      []RangeField
	Categorical []Field
	Features    Field
	InStock     bool
}

var ChairSchema = Schema{
	Collection: model.CollectionChair,
	Ranges: []RangeField{
		{Key: "price", Param: "priceRangeId", Column: "price"},
		{Key: "height", Param: "heightRangeId", Column: "height"},
		{Key: "width", Param: "widthRangeId", Column: "width"},
		{Key: "depth", Param: "depthRangeId", Column: "depth"},
	},
	Categorical: []Field{
		{Param: "kind", Column: "kind"},
		{Param: "color", Column: "color"},
	},
	Features: Field{Param: "features", Column: "features"},
	InStock:  true,
}

var EstateSchema = Schema{
	Collection: model.CollectionEstate,
	Ranges: []RangeField{
		{Key: "doorHeight", Param: "doorHeightRangeId", Column: "door_height"},
		{Key: "doorWidth", Param: "doorWidthRangeId", Column: "door_width"},
		{Key: "rent", Param: "rentRangeId", Column: "rent"},
	},
	Features: Field{Param: "features", Column: "features"},
}

type dimension struct {
	Prefix string  `json:"prefix,omitempty"`
	Suffix string  `json:"suffix,omitempty"`
	Ranges []Range `json:"ranges,omitempty"`
}

// Catalog is immutable after Parse and safe for concurrent readers.
type Catalog struct {
	schema Schema
	ranges map[string][]Range
	raw    json.RawMessage
}

func Parse(schema Schema, data []byte) (*Catalog, error) {
	var doc map[string]dimension
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCatalog, schema.Collection, err)
	}

	c := &Catalog{
		schema: schema,
		ranges: make(map[string][]Range, len(schema.Ranges)),
		raw:    append(json.RawMessage(nil), data...),
	}
	for _, rf := range schema.Ranges {
		dim, ok := doc[rf.Key]
		if !ok || len(dim.Ranges) == 0 {
			return nil, fmt.Errorf("%w: %s.%s has no ranges", ErrInvalidCatalog, schema.Collection, rf.Key)
		}
		for i, r := range dim.Ranges {
			if err := validateRange(i, r); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrInvalidCatalog, schema.Collection, rf.Key, err)
			}
		}
		c.ranges[rf.Key] = dim.Ranges
	}
	return c, nil
}

func validateRange(i int, r Range) error {
	if r.ID != i {
		return fmt.Errorf("range at index %d has id %d", i, r.ID)
	}
	if r.Min < Unbounded || r.Max < Unbounded {
		return fmt.Errorf("range %d has bound below %d", i, Unbounded)
	}
	if r.Min != Unbounded && r.Max != Unbounded && r.Min >= r.Max {
		return fmt.Errorf("range %d has min %d >= max %d", i, r.Min, r.Max)
	}
	return nil
}

func Load(schema Schema, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s condition %q: %w", schema.Collection, path, err)
	}
	return Parse(schema, data)
}

func (c *Catalog) Schema() Schema { return c.schema }

// Bucket resolves a zero-based bucket index for a range dimension.
func (c *Catalog) Bucket(key string, index int) (Range, bool) {
	rs := c.ranges[key]
	if index < 0 || index >= len(rs) {
		return Range{}, false
	}
	return rs[index], true
}

// Document returns the condition document as loaded.
func (c *Catalog) Document() json.RawMessage { return c.raw }
