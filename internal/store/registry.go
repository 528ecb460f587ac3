package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mohammed-shakir/listing-search/internal/core/config"
)

type Factory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, error)

var (
	regMu sync.RWMutex
	reg   = map[string]Factory{}
)

func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	reg[name] = f
}

// Open builds the driver registered under name. An unknown name is an error;
// there is no default driver.
func Open(ctx context.Context, name string, cfg config.Config, logger *slog.Logger) (Store, error) {
	regMu.RLock()
	f, ok := reg[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (registered: %v)", name, Drivers())
	}
	return f(ctx, cfg, logger)
}

func Drivers() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(reg))
	for name := range reg {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
