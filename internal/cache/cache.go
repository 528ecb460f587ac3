// Package cache is the listing result cache: low priced lists keyed per
// collection and polygon search results indexed by the H3 cells they cover.
// A nil *Results is a disabled cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/listing-search/internal/cache/cellindex"
	"github.com/mohammed-shakir/listing-search/internal/cache/keys"
	"github.com/mohammed-shakir/listing-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/geo"
	h3mapper "github.com/mohammed-shakir/listing-search/internal/mapper/h3"
)

const (
	kindLowPriced = "low_priced"
	kindNazotte   = "nazotte"
)

type Config struct {
	OpTimeout    time.Duration
	LowPricedTTL time.Duration
	NazotteTTL   time.Duration
}

type Results struct {
	cli    *redisstore.Client
	idx    cellindex.CellIndex
	mapper *h3mapper.Mapper
	cfg    Config
	log    *slog.Logger
}

func New(cli *redisstore.Client, idx cellindex.CellIndex, mapper *h3mapper.Mapper, cfg Config, log *slog.Logger) *Results {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Results{cli: cli, idx: idx, mapper: mapper, cfg: cfg, log: log}
}

func (r *Results) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.OpTimeout)
}

func (r *Results) get(ctx context.Context, kind, key string, dst any) bool {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	raw, ok, err := r.cli.Get(ctx, key)
	if err != nil {
		r.log.WarnContext(ctx, "cache get failed", "key", key, "err", err)
		return false
	}
	if !ok {
		observability.AddCacheMisses(kind, 1)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		r.log.WarnContext(ctx, "cache decode failed", "key", key, "err", err)
		return false
	}
	observability.AddCacheHits(kind, 1)
	return true
}

func (r *Results) put(ctx context.Context, key string, v any, ttl time.Duration) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		r.log.WarnContext(ctx, "cache encode failed", "key", key, "err", err)
		return false
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	if err := r.cli.Set(ctx, key, payload, ttl); err != nil {
		r.log.WarnContext(ctx, "cache set failed", "key", key, "err", err)
		return false
	}
	return true
}

// LowPriced loads the cached low priced list of a collection into dst.
func (r *Results) LowPriced(ctx context.Context, collection string, dst any) bool {
	if r == nil {
		return false
	}
	return r.get(ctx, kindLowPriced, keys.LowPriced(collection), dst)
}

func (r *Results) PutLowPriced(ctx context.Context, collection string, v any) {
	if r == nil {
		return
	}
	r.put(ctx, keys.LowPriced(collection), v, r.cfg.LowPricedTTL)
}

func (r *Results) Nazotte(ctx context.Context, poly geo.Polygon, dst any) bool {
	if r == nil {
		return false
	}
	return r.get(ctx, kindNazotte, keys.Nazotte(poly), dst)
}

// PutNazotte caches a polygon search result and registers it under every
// cell covering the polygon's bounding box. Boxes too large to index are
// not cached.
func (r *Results) PutNazotte(ctx context.Context, poly geo.Polygon, v any) {
	if r == nil {
		return
	}
	box, err := poly.Bounds()
	if err != nil {
		return
	}
	cells, err := r.mapper.CoverBox(box)
	if errors.Is(err, h3mapper.ErrTooManyCells) {
		r.log.DebugContext(ctx, "nazotte result not cached", "box", box.String(), "reason", err.Error())
		return
	}
	if err != nil {
		r.log.WarnContext(ctx, "nazotte cover failed", "err", err)
		return
	}

	key := keys.Nazotte(poly)
	// index first so a concurrent invalidation can always find the key
	ictx, cancel := r.opCtx(ctx)
	err = r.idx.Add(ictx, r.mapper.Res(), cells, key, r.cfg.NazotteTTL)
	cancel()
	if err != nil {
		r.log.WarnContext(ctx, "cache index failed", "key", key, "err", err)
		return
	}
	r.put(ctx, key, v, r.cfg.NazotteTTL)
}

func (r *Results) InvalidateLowPriced(ctx context.Context, collection string) error {
	if r == nil {
		return nil
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	return r.cli.Del(ctx, keys.LowPriced(collection))
}

// InvalidatePoints drops every cached polygon result whose box may contain
// one of the points and returns how many keys were removed.
func (r *Results) InvalidatePoints(ctx context.Context, points []geo.Coordinate) (int, error) {
	if r == nil || len(points) == 0 {
		return 0, nil
	}
	seen := make(map[string]struct{}, len(points))
	cells := make([]string, 0, len(points))
	for _, p := range points {
		c, err := r.mapper.CellForPoint(p)
		if err != nil {
			return 0, err
		}
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			cells = append(cells, c)
		}
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	stale, err := r.idx.Keys(ctx, r.mapper.Res(), cells)
	if err != nil {
		return 0, err
	}
	if err := r.cli.Del(ctx, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}
