package invalidation

import (
	"context"
	"log/slog"
)

// Sink receives events after the write that produced them has committed.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// Direct applies events in process, for single instance deployments.
type Direct struct {
	applier *Applier
	log     *slog.Logger
}

func NewDirect(a *Applier, log *slog.Logger) *Direct {
	if log == nil {
		log = slog.Default()
	}
	return &Direct{applier: a, log: log}
}

func (d *Direct) Publish(ctx context.Context, ev Event) {
	if err := d.applier.Apply(context.WithoutCancel(ctx), ev); err != nil {
		d.log.WarnContext(ctx, "direct invalidation failed", "collection", ev.Collection, "err", err)
	}
}

// Nop discards events; used when invalidation is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
