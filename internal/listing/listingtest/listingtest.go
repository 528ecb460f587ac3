// Package listingtest builds a listing service over the memory store with
// a small fixed data set, for tests of the service and its HTTP surface.
package listingtest

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/listing-search/internal/cache"
	"github.com/mohammed-shakir/listing-search/internal/cache/cellindex"
	"github.com/mohammed-shakir/listing-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/listing-search/internal/catalog"
	"github.com/mohammed-shakir/listing-search/internal/invalidation"
	"github.com/mohammed-shakir/listing-search/internal/listing"
	h3mapper "github.com/mohammed-shakir/listing-search/internal/mapper/h3"
	"github.com/mohammed-shakir/listing-search/internal/store"
	"github.com/mohammed-shakir/listing-search/internal/store/memory"
)

const ChairCondition = `{
  "price":  {"prefix":"","suffix":"円","ranges":[{"id":0,"min":-1,"max":3000},{"id":1,"min":3000,"max":6000},{"id":2,"min":6000,"max":-1}]},
  "height": {"prefix":"","suffix":"cm","ranges":[{"id":0,"min":-1,"max":80},{"id":1,"min":80,"max":-1}]},
  "width":  {"prefix":"","suffix":"cm","ranges":[{"id":0,"min":-1,"max":70},{"id":1,"min":70,"max":-1}]},
  "depth":  {"prefix":"","suffix":"cm","ranges":[{"id":0,"min":-1,"max":70},{"id":1,"min":70,"max":-1}]},
  "color":  {"list":["黒","白"]},
  "feature":{"list":["折りたたみ可","肘掛け"]},
  "kind":   {"list":["ゲーミングチェア","座椅子"]}
}`

const EstateCondition = `{
  "doorWidth":  {"prefix":"","suffix":"cm","ranges":[{"id":0,"min":-1,"max":80},{"id":1,"min":80,"max":-1}]},
  "doorHeight": {"prefix":"","suffix":"cm","ranges":[{"id":0,"min":-1,"max":80},{"id":1,"min":80,"max":-1}]},
  "rent":       {"prefix":"","suffix":"円","ranges":[{"id":0,"min":-1,"max":50000},{"id":1,"min":50000,"max":-1}]},
  "feature":    {"list":["最上階","防音室"]}
}`

// Chairs: 1 cheap gaming chair in stock, 2 mid priced, 3 sold out.
const ChairsCSV = `1,椅子A,desc,a.png,2000,70,50,50,黒,折りたたみ可,ゲーミングチェア,10,3
2,椅子B,desc,b.png,5000,90,60,60,白,,座椅子,20,1

3,椅子C,desc,c.png,8000,120,80,70,黒,肘掛け,ゲーミングチェア,20,0
`

// Estates: 1 and 2 in central Tokyo, 3 in Osaka.
const EstatesCSV = `1,物件A,desc,a.png,東京都千代田区,35.68,139.76,40000,100,80,最上階,50
2,物件B,desc,b.png,東京都渋谷区,35.70,139.72,60000,70,60,,40
3,物件C,desc,c.png,大阪府大阪市,34.69,135.50,30000,200,150,防音室,90
`

type Options struct {
	// Cache attaches a miniredis backed result cache.
	Cache bool
	// Direct applies invalidation events in process; otherwise they are
	// discarded.
	Direct bool
	// Empty skips seeding the fixture rows.
	Empty bool
}

type Env struct {
	Service *listing.Service
	Store   *CountingStore
	Redis   *miniredis.Miniredis
	Cache   *cache.Results
}

// CountingStore counts the transactions opened on the wrapped store.
type CountingStore struct {
	store.Store
	Begins atomic.Int64
}

func (c *CountingStore) Begin(ctx context.Context) (store.Tx, error) {
	c.Begins.Add(1)
	return c.Store.Begin(ctx)
}

func New(t *testing.T, opts Options) *Env {
	t.Helper()
	ctx := context.Background()

	chairCat, err := catalog.Parse(catalog.ChairSchema, []byte(ChairCondition))
	if err != nil {
		t.Fatalf("chair catalog: %v", err)
	}
	estateCat, err := catalog.Parse(catalog.EstateSchema, []byte(EstateCondition))
	if err != nil {
		t.Fatalf("estate catalog: %v", err)
	}

	env := &Env{Store: &CountingStore{Store: memory.New()}}
	if opts.Cache {
		env.Redis = miniredis.RunT(t)
		cli, err := redisstore.New(ctx, env.Redis.Addr())
		if err != nil {
			t.Fatalf("redisstore.New: %v", err)
		}
		t.Cleanup(func() { _ = cli.Close() })
		m, err := h3mapper.New(7, 512)
		if err != nil {
			t.Fatalf("mapper: %v", err)
		}
		env.Cache = cache.New(cli, cellindex.NewRedisIndex(cli), m, cache.Config{
			LowPricedTTL: time.Minute,
			NazotteTTL:   time.Minute,
		}, nil)
	}

	var sink invalidation.Sink = invalidation.Nop{}
	if opts.Direct {
		sink = invalidation.NewDirect(invalidation.NewApplier(env.Cache, nil), nil)
	}

	env.Service = listing.New(listing.Deps{
		Store:         env.Store,
		ChairCatalog:  chairCat,
		EstateCatalog: estateCat,
		Cache:         env.Cache,
		Sink:          sink,
	})

	if !opts.Empty {
		if _, err := env.Service.PostChairs(ctx, strings.NewReader(ChairsCSV)); err != nil {
			t.Fatalf("seed chairs: %v", err)
		}
		if _, err := env.Service.PostEstates(ctx, strings.NewReader(EstatesCSV)); err != nil {
			t.Fatalf("seed estates: %v", err)
		}
	}
	return env
}
