// Package memory is an in-process listing store. Predicates are evaluated in
// Go and polygon containment uses the geo package, so it behaves like the
// postgres driver without a database.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mohammed-shakir/listing-search/internal/core/config"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/geo"
	"github.com/mohammed-shakir/listing-search/internal/search"
	"github.com/mohammed-shakir/listing-search/internal/store"
)

const DriverName = "memory"

func init() {
	store.Register(DriverName, func(_ context.Context, _ config.Config, _ *slog.Logger) (store.Store, error) {
		return New(), nil
	})
}

type row interface {
	Column(name string) any
}

type Store struct {
	mu      sync.RWMutex
	chairs  map[int64]model.Chair
	estates map[int64]model.Estate
}

func New() *Store {
	return &Store{
		chairs:  make(map[int64]model.Chair),
		estates: make(map[int64]model.Estate),
	}
}

func (s *Store) Chairs() search.Source[model.Chair] { return source[model.Chair]{s: s, rows: s.chairRows} }

func (s *Store) Estates() search.Source[model.Estate] {
	return source[model.Estate]{s: s, rows: s.estateRows}
}

// callers hold s.mu
func (s *Store) chairRows() []model.Chair {
	out := make([]model.Chair, 0, len(s.chairs))
	for _, c := range s.chairs {
		out = append(out, c)
	}
	return out
}

func (s *Store) estateRows() []model.Estate {
	out := make([]model.Estate, 0, len(s.estates))
	for _, e := range s.estates {
		out = append(out, e)
	}
	return out
}

type source[T row] struct {
	s    *Store
	rows func() []T
}

func (src source[T]) Count(_ context.Context, preds []search.Predicate) (int64, error) {
	src.s.mu.RLock()
	defer src.s.mu.RUnlock()
	return int64(len(filter(src.rows(), preds))), nil
}

func (src source[T]) Fetch(_ context.Context, preds []search.Predicate, page search.Page) ([]T, error) {
	src.s.mu.RLock()
	rows := filter(src.rows(), preds)
	src.s.mu.RUnlock()

	sortRows(rows, page.Order)
	if page.Offset >= len(rows) {
		return []T{}, nil
	}
	end := len(rows)
	if page.Limit > 0 && page.Offset+page.Limit < end {
		end = page.Offset + page.Limit
	}
	return rows[page.Offset:end], nil
}

func filter[T row](rows []T, preds []search.Predicate) []T {
	out := rows[:0]
	for _, r := range rows {
		if matchAll(r, preds) {
			out = append(out, r)
		}
	}
	return out
}

func matchAll(r row, preds []search.Predicate) bool {
	for _, p := range preds {
		if !p.Match(r.Column(p.Column)) {
			return false
		}
	}
	return true
}

func sortRows[T row](rows []T, order []search.OrderBy) {
	slices.SortStableFunc(rows, func(a, b T) int {
		for _, o := range order {
			c := compareValues(a.Column(o.Column), b.Column(o.Column))
			if o.Dir == search.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	}
	return 0
}

func point(e model.Estate) geo.Coordinate {
	return geo.Coordinate{Latitude: e.Latitude, Longitude: e.Longitude}
}

func (s *Store) EstatesInBox(_ context.Context, box geo.BoundingBox, order []search.OrderBy) ([]model.Estate, error) {
	s.mu.RLock()
	var out []model.Estate
	for _, e := range s.estates {
		if box.Contains(point(e)) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sortRows(out, order)
	return out, nil
}

func (s *Store) EstateIDsInPolygon(_ context.Context, ids []int64, poly geo.Polygon) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for _, id := range ids {
		e, ok := s.estates[id]
		if ok && poly.Contains(point(e)) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Store) ChairByID(_ context.Context, id int64) (model.Chair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chairs[id]
	if !ok {
		return model.Chair{}, fmt.Errorf("chair %d: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (s *Store) EstateByID(_ context.Context, id int64) (model.Estate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.estates[id]
	if !ok {
		return model.Estate{}, fmt.Errorf("estate %d: %w", id, store.ErrNotFound)
	}
	return e, nil
}

func (s *Store) LowPricedChairs(ctx context.Context, limit int) ([]model.Chair, error) {
	return s.Chairs().Fetch(ctx,
		[]search.Predicate{{Column: "stock", Op: search.OpGT, Value: int64(0)}},
		search.Page{Limit: limit, Order: []search.OrderBy{{Column: "price"}, {Column: "id"}}},
	)
}

func (s *Store) LowPricedEstates(ctx context.Context, limit int) ([]model.Estate, error) {
	return s.Estates().Fetch(ctx, nil,
		search.Page{Limit: limit, Order: []search.OrderBy{{Column: "rent"}, {Column: "id"}}},
	)
}

func (s *Store) RecommendedEstates(ctx context.Context, w1, w2 int64, limit int) ([]model.Estate, error) {
	return s.Estates().Fetch(ctx,
		[]search.Predicate{
			{Column: "w1", Op: search.OpGTE, Value: w1},
			{Column: "w2", Op: search.OpGTE, Value: w2},
		},
		search.Page{Limit: limit, Order: search.CanonicalOrder},
	)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

// Begin takes the store write lock; it is released by Commit or Rollback.
func (s *Store) Begin(context.Context) (store.Tx, error) {
	s.mu.Lock()
	return &tx{s: s, stock: make(map[int64]int64)}, nil
}

type tx struct {
	s       *Store
	chairs  []model.Chair
	estates []model.Estate
	stock   map[int64]int64
	done    bool
}

func (t *tx) finish() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

func (t *tx) Commit(context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	for _, c := range t.chairs {
		t.s.chairs[c.ID] = c
	}
	for _, e := range t.estates {
		t.s.estates[e.ID] = e
	}
	for id, n := range t.stock {
		c := t.s.chairs[id]
		c.Stock -= n
		t.s.chairs[id] = c
	}
	return t.finish()
}

func (t *tx) Rollback(context.Context) error { return t.finish() }

func (t *tx) InsertChairs(_ context.Context, chairs []model.Chair) error {
	seen := make(map[int64]struct{}, len(t.chairs)+len(chairs))
	for _, c := range t.chairs {
		seen[c.ID] = struct{}{}
	}
	for _, c := range chairs {
		if _, ok := t.s.chairs[c.ID]; ok {
			return fmt.Errorf("chair %d: %w", c.ID, store.ErrConflict)
		}
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("chair %d: %w", c.ID, store.ErrConflict)
		}
		seen[c.ID] = struct{}{}
	}
	t.chairs = append(t.chairs, chairs...)
	return nil
}

func (t *tx) InsertEstates(_ context.Context, estates []model.Estate) error {
	seen := make(map[int64]struct{}, len(t.estates)+len(estates))
	for _, e := range t.estates {
		seen[e.ID] = struct{}{}
	}
	for _, e := range estates {
		if _, ok := t.s.estates[e.ID]; ok {
			return fmt.Errorf("estate %d: %w", e.ID, store.ErrConflict)
		}
		if _, ok := seen[e.ID]; ok {
			return fmt.Errorf("estate %d: %w", e.ID, store.ErrConflict)
		}
		seen[e.ID] = struct{}{}
	}
	t.estates = append(t.estates, estates...)
	return nil
}

func (t *tx) LockChairInStock(_ context.Context, id int64) (model.Chair, error) {
	c, ok := t.s.chairs[id]
	if !ok || c.Stock-t.stock[id] <= 0 {
		return model.Chair{}, fmt.Errorf("chair %d: %w", id, store.ErrSoldOut)
	}
	c.Stock -= t.stock[id]
	return c, nil
}

func (t *tx) DecrementChairStock(_ context.Context, id int64) error {
	if _, ok := t.s.chairs[id]; !ok {
		return fmt.Errorf("chair %d: %w", id, store.ErrNotFound)
	}
	t.stock[id]++
	return nil
}
