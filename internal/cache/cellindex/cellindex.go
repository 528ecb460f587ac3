// Package cellindex records which cached result keys cover each H3 cell, so
// a write at a point can find the results it invalidates.
package cellindex

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammed-shakir/listing-search/internal/cache/keys"
	"github.com/mohammed-shakir/listing-search/internal/cache/redisstore"
)

type CellIndex interface {
	// Add registers resultKey under every cell.
	Add(ctx context.Context, res int, cells []string, resultKey string, ttl time.Duration) error
	// Keys returns the result keys registered under any of the cells.
	Keys(ctx context.Context, res int, cells []string) ([]string, error)
}

type redisCellIndex struct {
	cli *redisstore.Client
}

func NewRedisIndex(cli *redisstore.Client) CellIndex {
	return &redisCellIndex{cli: cli}
}

func indexKeys(res int, cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = keys.CellIndex(res, c)
	}
	return out
}

func (ci *redisCellIndex) Add(ctx context.Context, res int, cells []string, resultKey string, ttl time.Duration) error {
	if err := ci.cli.SAddWithTTL(ctx, indexKeys(res, cells), resultKey, ttl); err != nil {
		return fmt.Errorf("cellindex add %q: %w", resultKey, err)
	}
	return nil
}

func (ci *redisCellIndex) Keys(ctx context.Context, res int, cells []string) ([]string, error) {
	members, err := ci.cli.SUnion(ctx, indexKeys(res, cells)...)
	if err != nil {
		return nil, fmt.Errorf("cellindex lookup: %w", err)
	}
	return members, nil
}
