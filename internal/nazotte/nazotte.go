// Package nazotte finds the estates inside a user drawn polygon: a bounding
// box prefilter followed by an exact containment test on the survivors.
package nazotte

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/geo"
	"github.com/mohammed-shakir/listing-search/internal/search"
)

// Limit caps the number of estates a polygon search returns.
const Limit = 50

var ErrEmptyPolygon = geo.ErrEmptyPolygon

type Source interface {
	// EstatesInBox returns estates whose point lies in the box, edges
	// included, in the given order.
	EstatesInBox(ctx context.Context, box geo.BoundingBox, order []search.OrderBy) ([]model.Estate, error)
	// EstateIDsInPolygon returns which of ids lie strictly inside the polygon.
	// The returned order is not significant.
	EstateIDsInPolygon(ctx context.Context, ids []int64, poly geo.Polygon) ([]int64, error)
}

type Engine struct {
	src Source
	log *slog.Logger
}

func NewEngine(src Source, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{src: src, log: log}
}

// Search returns at most Limit estates inside poly, ranked by popularity
// then id. Count equals the number of returned items, not the number of
// estates inside the polygon.
func (e *Engine) Search(ctx context.Context, poly geo.Polygon) (search.Result[model.Estate], error) {
	box, err := poly.Bounds()
	if err != nil {
		return search.Result[model.Estate]{}, err
	}

	candidates, err := e.src.EstatesInBox(ctx, box, search.CanonicalOrder)
	if err != nil {
		return search.Result[model.Estate]{}, fmt.Errorf("bounding box query: %w", err)
	}
	if len(candidates) == 0 {
		observability.ObserveNazotte(0, 0)
		return search.Result[model.Estate]{Items: []model.Estate{}}, nil
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	inside, err := e.src.EstateIDsInPolygon(ctx, ids, poly)
	if err != nil {
		return search.Result[model.Estate]{}, fmt.Errorf("containment query: %w", err)
	}
	keep := make(map[int64]struct{}, len(inside))
	for _, id := range inside {
		keep[id] = struct{}{}
	}

	items := make([]model.Estate, 0, min(len(inside), Limit))
	for _, c := range candidates {
		if len(items) == Limit {
			break
		}
		if _, ok := keep[c.ID]; ok {
			items = append(items, c)
		}
	}

	observability.ObserveNazotte(len(candidates), len(items))
	e.log.DebugContext(ctx, "nazotte search",
		"box", box.String(),
		"candidates", len(candidates),
		"inside", len(inside),
		"returned", len(items),
	)
	return search.Result[model.Estate]{Count: int64(len(items)), Items: items}, nil
}
