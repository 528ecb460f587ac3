package search

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/listing-search/internal/catalog"
)

var (
	ErrInvalidRangeIndex = errors.New("invalid range index")
	ErrNoSearchCondition = errors.New("search condition not found")
	ErrInvalidPagination = errors.New("invalid pagination")
)

type InvalidRangeIndexError struct {
	Dimension string
	Index     string
}

func (e *InvalidRangeIndexError) Error() string {
	return fmt.Sprintf("%s invalid: %q", e.Dimension, e.Index)
}

func (e *InvalidRangeIndexError) Unwrap() error { return ErrInvalidRangeIndex }

// Filter carries raw client input keyed by request parameter name. Empty
// values mean the dimension was not supplied.
type Filter struct {
	Ranges      map[string]string
	Categorical map[string]string
	Features    string
}

// FilterFromValues picks the parameters a schema knows about out of a query
// string.
func FilterFromValues(schema catalog.Schema, q url.Values) Filter {
	f := Filter{
		Ranges:      make(map[string]string, len(schema.Ranges)),
		Categorical: make(map[string]string, len(schema.Categorical)),
	}
	for _, rf := range schema.Ranges {
		if v := q.Get(rf.Param); v != "" {
			f.Ranges[rf.Param] = v
		}
	}
	for _, cf := range schema.Categorical {
		if v := q.Get(cf.Param); v != "" {
			f.Categorical[cf.Param] = v
		}
	}
	if schema.Features.Param != "" {
		f.Features = q.Get(schema.Features.Param)
	}
	return f
}

// Build validates a filter against the catalog and returns its predicates in
// a fixed order: range dimensions as declared, categorical values, feature
// tokens in input order, then the implicit in-stock condition.
func Build(f Filter, c *catalog.Catalog) ([]Predicate, error) {
	schema := c.Schema()
	var preds []Predicate

	for _, rf := range schema.Ranges {
		raw := f.Ranges[rf.Param]
		if raw == "" {
			continue
		}
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &InvalidRangeIndexError{Dimension: rf.Param, Index: raw}
		}
		r, ok := c.Bucket(rf.Key, idx)
		if !ok {
			return nil, &InvalidRangeIndexError{Dimension: rf.Param, Index: raw}
		}
		if r.Min != catalog.Unbounded {
			preds = append(preds, Predicate{Column: rf.Column, Op: OpGTE, Value: r.Min})
		}
		if r.Max != catalog.Unbounded {
			preds = append(preds, Predicate{Column: rf.Column, Op: OpLT, Value: r.Max})
		}
	}

	for _, cf := range schema.Categorical {
		if v := f.Categorical[cf.Param]; v != "" {
			preds = append(preds, Predicate{Column: cf.Column, Op: OpEQ, Value: v})
		}
	}

	if f.Features != "" {
		for tok := range strings.SplitSeq(f.Features, ",") {
			if tok == "" {
				continue
			}
			preds = append(preds, Predicate{Column: schema.Features.Column, Op: OpContains, Value: tok})
		}
	}

	// a bucket spanning both unbounded ends yields nothing and still counts
	// as no condition
	if len(preds) == 0 {
		return nil, ErrNoSearchCondition
	}

	if schema.InStock {
		preds = append(preds, Predicate{Column: "stock", Op: OpGT, Value: int64(0)})
	}
	return preds, nil
}
