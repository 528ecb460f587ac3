package invalidation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/geo"
)

// Cache is the part of the result cache an event touches.
type Cache interface {
	InvalidateLowPriced(ctx context.Context, collection string) error
	InvalidatePoints(ctx context.Context, points []geo.Coordinate) (int, error)
}

type Applier struct {
	cache Cache
	log   *slog.Logger
}

func NewApplier(c Cache, log *slog.Logger) *Applier {
	if log == nil {
		log = slog.Default()
	}
	return &Applier{cache: c, log: log}
}

// Apply drops the cached results an event makes stale: the collection's low
// priced list, and for estates every polygon result covering a new point.
func (a *Applier) Apply(ctx context.Context, ev Event) (err error) {
	defer func() { observability.ObserveInvalidation(ev.Collection, err) }()

	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	if err := a.cache.InvalidateLowPriced(ctx, ev.Collection); err != nil {
		return fmt.Errorf("invalidate low priced %s: %w", ev.Collection, err)
	}
	dropped := 0
	if ev.Collection == model.CollectionEstate && len(ev.Points) > 0 {
		points, rejected := ev.ValidPoints()
		if rejected > 0 {
			a.log.WarnContext(ctx, "invalidation points out of range skipped",
				"collection", ev.Collection, "rejected", rejected)
		}
		if dropped, err = a.cache.InvalidatePoints(ctx, points); err != nil {
			return fmt.Errorf("invalidate nazotte results: %w", err)
		}
	}
	a.log.DebugContext(ctx, "invalidation applied",
		"collection", ev.Collection, "op", ev.Op, "ids", len(ev.IDs), "nazotte_keys", dropped)
	return nil
}
