package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/listing-search/internal/cache/cellindex"
	"github.com/mohammed-shakir/listing-search/internal/cache/keys"
	"github.com/mohammed-shakir/listing-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/listing-search/internal/geo"
	h3mapper "github.com/mohammed-shakir/listing-search/internal/mapper/h3"
)

type page struct {
	Count int64   `json:"count"`
	IDs   []int64 `json:"ids"`
}

func newResults(t *testing.T, maxCells int) (*Results, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	m, err := h3mapper.New(7, maxCells)
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	return New(cli, cellindex.NewRedisIndex(cli), m, Config{
		LowPricedTTL: time.Minute,
		NazotteTTL:   2 * time.Minute,
	}, nil), mr
}

var poly = geo.Polygon{
	{Latitude: 35.65, Longitude: 139.70},
	{Latitude: 35.65, Longitude: 139.78},
	{Latitude: 35.71, Longitude: 139.74},
}

func TestNilResultsIsDisabled(t *testing.T) {
	var r *Results
	var dst page
	ctx := context.Background()
	if r.LowPriced(ctx, "chair", &dst) || r.Nazotte(ctx, poly, &dst) {
		t.Fatalf("nil cache should always miss")
	}
	r.PutLowPriced(ctx, "chair", page{})
	r.PutNazotte(ctx, poly, page{})
	if err := r.InvalidateLowPriced(ctx, "chair"); err != nil {
		t.Fatalf("InvalidateLowPriced: %v", err)
	}
	if n, err := r.InvalidatePoints(ctx, []geo.Coordinate{{}}); n != 0 || err != nil {
		t.Fatalf("InvalidatePoints=%d,%v", n, err)
	}
}

func TestLowPriced_RoundTripAndInvalidate(t *testing.T) {
	r, mr := newResults(t, 2048)
	ctx := context.Background()

	var dst page
	if r.LowPriced(ctx, "estate", &dst) {
		t.Fatalf("expected miss on empty cache")
	}
	r.PutLowPriced(ctx, "estate", page{IDs: []int64{3, 1}})
	if !r.LowPriced(ctx, "estate", &dst) || len(dst.IDs) != 2 || dst.IDs[0] != 3 {
		t.Fatalf("expected hit, got %+v", dst)
	}
	if mr.TTL(keys.LowPriced("estate")) != time.Minute {
		t.Fatalf("low priced ttl not applied")
	}
	if err := r.InvalidateLowPriced(ctx, "estate"); err != nil {
		t.Fatalf("InvalidateLowPriced: %v", err)
	}
	if r.LowPriced(ctx, "estate", &dst) {
		t.Fatalf("expected miss after invalidation")
	}
}

func TestNazotte_InvalidatedByPointInsideBox(t *testing.T) {
	r, mr := newResults(t, 2048)
	ctx := context.Background()

	r.PutNazotte(ctx, poly, page{Count: 1, IDs: []int64{9}})
	var dst page
	if !r.Nazotte(ctx, poly, &dst) || dst.Count != 1 {
		t.Fatalf("expected nazotte hit, got %+v", dst)
	}

	far := []geo.Coordinate{{Latitude: 43.06, Longitude: 141.35}}
	if n, err := r.InvalidatePoints(ctx, far); err != nil || n != 0 {
		t.Fatalf("far point invalidated %d keys, err=%v", n, err)
	}
	if !mr.Exists(keys.Nazotte(poly)) {
		t.Fatalf("far point must not drop the result")
	}

	near := []geo.Coordinate{{Latitude: 35.66, Longitude: 139.705}}
	n, err := r.InvalidatePoints(ctx, near)
	if err != nil || n != 1 {
		t.Fatalf("InvalidatePoints=%d,%v want 1", n, err)
	}
	if r.Nazotte(ctx, poly, &dst) {
		t.Fatalf("expected miss after invalidation")
	}
}

func TestNazotte_LargeBoxNotCached(t *testing.T) {
	r, mr := newResults(t, 8)
	r.PutNazotte(context.Background(), poly, page{Count: 1})
	if mr.Exists(keys.Nazotte(poly)) {
		t.Fatalf("result over the cell cap should not be cached")
	}
}

func TestGet_CorruptPayloadIsMiss(t *testing.T) {
	r, mr := newResults(t, 2048)
	if err := mr.Set(keys.LowPriced("chair"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var dst page
	if r.LowPriced(context.Background(), "chair", &dst) {
		t.Fatalf("corrupt payload should miss")
	}
}
