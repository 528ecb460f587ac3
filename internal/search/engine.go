package search

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

type OrderBy struct {
	Column string
	Dir    Direction
}

// CanonicalOrder ranks by popularity and breaks ties by id so pages never
// overlap or skip rows.
var CanonicalOrder = []OrderBy{{Column: "popularity", Dir: Desc}, {Column: "id", Dir: Asc}}

type Page struct {
	Limit  int
	Offset int
	Order  []OrderBy
}

// Source is a filterable collection. Count and Fetch receive the same
// predicates.
type Source[T any] interface {
	Count(ctx context.Context, preds []Predicate) (int64, error)
	Fetch(ctx context.Context, preds []Predicate, page Page) ([]T, error)
}

type Result[T any] struct {
	Count int64
	Items []T
}

type Engine[T any] struct {
	src Source[T]
}

func NewEngine[T any](src Source[T]) *Engine[T] {
	return &Engine[T]{src: src}
}

func (e *Engine[T]) Search(ctx context.Context, preds []Predicate, page, perPage int) (Result[T], error) {
	if page < 0 || perPage <= 0 {
		return Result[T]{}, fmt.Errorf("%w: page=%d perPage=%d", ErrInvalidPagination, page, perPage)
	}
	if page > 0 && perPage > math.MaxInt/page {
		return Result[T]{}, fmt.Errorf("%w: offset overflows", ErrInvalidPagination)
	}

	count, err := e.src.Count(ctx, preds)
	if err != nil {
		return Result[T]{}, fmt.Errorf("count: %w", err)
	}
	items, err := e.src.Fetch(ctx, preds, Page{
		Limit:  perPage,
		Offset: page * perPage,
		Order:  CanonicalOrder,
	})
	if err != nil {
		return Result[T]{}, fmt.Errorf("fetch: %w", err)
	}
	if items == nil {
		items = []T{}
	}
	return Result[T]{Count: count, Items: items}, nil
}

// ParsePagination parses the raw page and perPage request parameters.
func ParsePagination(rawPage, rawPerPage string) (page, perPage int, err error) {
	page, err = strconv.Atoi(rawPage)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: page %q", ErrInvalidPagination, rawPage)
	}
	perPage, err = strconv.Atoi(rawPerPage)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: perPage %q", ErrInvalidPagination, rawPerPage)
	}
	if page < 0 || perPage <= 0 {
		return 0, 0, fmt.Errorf("%w: page=%d perPage=%d", ErrInvalidPagination, page, perPage)
	}
	return page, perPage, nil
}
