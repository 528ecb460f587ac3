// Package store defines the listing storage contract and a name registry of
// drivers that implement it.
package store

import (
	"context"
	"errors"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/geo"
	"github.com/mohammed-shakir/listing-search/internal/search"
)

var (
	ErrNotFound = errors.New("not found")
	ErrSoldOut  = errors.New("sold out")
	ErrConflict = errors.New("duplicate id")
)

// Tx is one write transaction. Writes become visible on Commit.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	InsertChairs(ctx context.Context, chairs []model.Chair) error
	InsertEstates(ctx context.Context, estates []model.Estate) error
	// LockChairInStock locks the chair row for the rest of the transaction.
	// It returns ErrSoldOut when the chair is missing or has no stock.
	LockChairInStock(ctx context.Context, id int64) (model.Chair, error)
	DecrementChairStock(ctx context.Context, id int64) error
}

type Store interface {
	Chairs() search.Source[model.Chair]
	Estates() search.Source[model.Estate]

	EstatesInBox(ctx context.Context, box geo.BoundingBox, order []search.OrderBy) ([]model.Estate, error)
	EstateIDsInPolygon(ctx context.Context, ids []int64, poly geo.Polygon) ([]int64, error)

	ChairByID(ctx context.Context, id int64) (model.Chair, error)
	EstateByID(ctx context.Context, id int64) (model.Estate, error)
	LowPricedChairs(ctx context.Context, limit int) ([]model.Chair, error)
	LowPricedEstates(ctx context.Context, limit int) ([]model.Estate, error)
	// RecommendedEstates returns estates whose door admits an opening of
	// w1 by w2 (w1 >= w2).
	RecommendedEstates(ctx context.Context, w1, w2 int64, limit int) ([]model.Estate, error)

	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close()
}
