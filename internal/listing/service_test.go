package listing_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/mohammed-shakir/listing-search/internal/geo"
	"github.com/mohammed-shakir/listing-search/internal/listing"
	"github.com/mohammed-shakir/listing-search/internal/listing/listingtest"
	"github.com/mohammed-shakir/listing-search/internal/nazotte"
	"github.com/mohammed-shakir/listing-search/internal/search"
	"github.com/mohammed-shakir/listing-search/internal/store"
)

var tokyo = geo.Polygon{
	{Latitude: 35.60, Longitude: 139.60},
	{Latitude: 35.60, Longitude: 139.90},
	{Latitude: 35.80, Longitude: 139.90},
	{Latitude: 35.80, Longitude: 139.60},
}

func query(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return q
}

func TestSearchChairs(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	ctx := context.Background()

	cases := []struct {
		name  string
		q     url.Values
		count int64
		ids   []int64
	}{
		{"cheap", query("priceRangeId", "0", "page", "0", "perPage", "10"), 1, []int64{1}},
		{"sold out excluded", query("priceRangeId", "2", "page", "0", "perPage", "10"), 0, nil},
		{"kind", query("kind", "ゲーミングチェア", "page", "0", "perPage", "10"), 1, []int64{1}},
		{"feature token", query("features", "折りたたみ可", "page", "0", "perPage", "10"), 1, []int64{1}},
		{"height and width", query("heightRangeId", "0", "widthRangeId", "0", "page", "0", "perPage", "10"), 1, []int64{1}},
		{"second page", query("depthRangeId", "0", "page", "1", "perPage", "1"), 2, []int64{1}},
	}
	for _, tc := range cases {
		got, err := env.Service.SearchChairs(ctx, tc.q)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got.Count != tc.count {
			t.Fatalf("%s: count=%d want %d", tc.name, got.Count, tc.count)
		}
		if got.Chairs == nil {
			t.Fatalf("%s: chairs must be an empty list, not null", tc.name)
		}
		if len(got.Chairs) != len(tc.ids) {
			t.Fatalf("%s: got %d chairs want %v", tc.name, len(got.Chairs), tc.ids)
		}
		for i, id := range tc.ids {
			if got.Chairs[i].ID != id {
				t.Fatalf("%s: chairs[%d]=%d want %d", tc.name, i, got.Chairs[i].ID, id)
			}
		}
	}
}

func TestSearchChairs_Rejections(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	ctx := context.Background()

	cases := []struct {
		name string
		q    url.Values
		want error
	}{
		{"no condition", query("page", "0", "perPage", "10"), search.ErrNoSearchCondition},
		{"bad index", query("priceRangeId", "9", "page", "0", "perPage", "10"), search.ErrInvalidRangeIndex},
		{"non numeric index", query("priceRangeId", "x", "page", "0", "perPage", "10"), search.ErrInvalidRangeIndex},
		{"missing page", query("priceRangeId", "0", "perPage", "10"), search.ErrInvalidPagination},
		{"zero per page", query("priceRangeId", "0", "page", "0", "perPage", "0"), search.ErrInvalidPagination},
	}
	for _, tc := range cases {
		if _, err := env.Service.SearchChairs(ctx, tc.q); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}
}

func TestSearchEstates(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	got, err := env.Service.SearchEstates(context.Background(),
		query("doorWidthRangeId", "1", "page", "0", "perPage", "10"))
	if err != nil {
		t.Fatalf("SearchEstates: %v", err)
	}
	if got.Count != 2 || got.Estates[0].ID != 3 || got.Estates[1].ID != 1 {
		t.Fatalf("unexpected page: %+v", got)
	}
	if got.Estates[0].DoorWidth != 150 {
		t.Fatalf("door width not projected: %+v", got.Estates[0])
	}
}

func TestChairByID(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	ctx := context.Background()

	c, err := env.Service.ChairByID(ctx, 1)
	if err != nil || c.Name != "椅子A" {
		t.Fatalf("ChairByID(1)=%+v,%v", c, err)
	}
	if _, err := env.Service.ChairByID(ctx, 3); !errors.Is(err, store.ErrSoldOut) {
		t.Fatalf("sold out chair: err=%v", err)
	}
	if _, err := env.Service.ChairByID(ctx, 99); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing chair: err=%v", err)
	}
}

func TestBuyChair_ConsumesStock(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	ctx := context.Background()

	if err := env.Service.BuyChair(ctx, 2, ""); !errors.Is(err, listing.ErrInvalidInput) {
		t.Fatalf("missing email: err=%v", err)
	}
	before := env.Store.Begins.Load()
	if err := env.Service.BuyChair(ctx, 2, "a@example.com"); err != nil {
		t.Fatalf("BuyChair: %v", err)
	}
	if err := env.Service.BuyChair(ctx, 2, "a@example.com"); !errors.Is(err, store.ErrSoldOut) {
		t.Fatalf("second buy: err=%v want sold out", err)
	}
	if n := env.Store.Begins.Load(); n != before+2 {
		t.Fatalf("begins=%d want %d", n, before+2)
	}
	if _, err := env.Service.ChairByID(ctx, 2); !errors.Is(err, store.ErrSoldOut) {
		t.Fatalf("chair 2 should be sold out, err=%v", err)
	}
	if err := env.Service.BuyChair(ctx, 99, "a@example.com"); !errors.Is(err, store.ErrSoldOut) {
		t.Fatalf("missing chair buy: err=%v", err)
	}
}

func TestBuyChair_ConcurrentBuyersShareStock(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if env.Service.BuyChair(ctx, 1, "a@example.com") == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 3 {
		t.Fatalf("%d purchases succeeded, want stock of 3", ok)
	}
}

func TestPostChairs_ParseErrorOpensNoTransaction(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{Empty: true})
	ctx := context.Background()

	_, err := env.Service.PostChairs(ctx, strings.NewReader("1,a,b,c,notanumber,1,1,1,黒,,k,1,1\n"))
	if !errors.Is(err, listing.ErrInvalidInput) {
		t.Fatalf("err=%v want invalid input", err)
	}
	if env.Store.Begins.Load() != 0 {
		t.Fatalf("a transaction was opened for a rejected upload")
	}
	if _, err := env.Service.PostEstates(ctx, strings.NewReader("")); !errors.Is(err, listing.ErrInvalidInput) {
		t.Fatalf("empty estates upload: err=%v", err)
	}
}

func TestPostChairs_DuplicateRollsBackWholeFile(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	ctx := context.Background()

	csv := "10,新,d,t,100,50,50,50,黒,,座椅子,1,1\n1,重複,d,t,100,50,50,50,黒,,座椅子,1,1\n"
	if _, err := env.Service.PostChairs(ctx, strings.NewReader(csv)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err=%v want conflict", err)
	}
	if _, err := env.Service.ChairByID(ctx, 10); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("row from failed upload is visible: %v", err)
	}
}

func TestNazotte(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	ctx := context.Background()

	got, err := env.Service.Nazotte(ctx, tokyo)
	if err != nil {
		t.Fatalf("Nazotte: %v", err)
	}
	if got.Count != 2 || got.Estates[0].ID != 1 || got.Estates[1].ID != 2 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if _, err := env.Service.Nazotte(ctx, nil); !errors.Is(err, nazotte.ErrEmptyPolygon) {
		t.Fatalf("empty polygon: err=%v", err)
	}
}

func TestNazotte_CachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	extra := "4,物件D,desc,d.png,東京都港区,35.65,139.75,45000,90,90,,99\n"

	stale := listingtest.New(t, listingtest.Options{Cache: true})
	if _, err := stale.Service.Nazotte(ctx, tokyo); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if _, err := stale.Service.PostEstates(ctx, strings.NewReader(extra)); err != nil {
		t.Fatalf("PostEstates: %v", err)
	}
	got, err := stale.Service.Nazotte(ctx, tokyo)
	if err != nil || got.Count != 2 {
		t.Fatalf("without invalidation the cached result should be served: %+v %v", got, err)
	}

	fresh := listingtest.New(t, listingtest.Options{Cache: true, Direct: true})
	if _, err := fresh.Service.Nazotte(ctx, tokyo); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if _, err := fresh.Service.PostEstates(ctx, strings.NewReader(extra)); err != nil {
		t.Fatalf("PostEstates: %v", err)
	}
	got, err = fresh.Service.Nazotte(ctx, tokyo)
	if err != nil {
		t.Fatalf("Nazotte: %v", err)
	}
	if got.Count != 3 || got.Estates[0].ID != 4 {
		t.Fatalf("invalidated result not recomputed: %+v", got)
	}
}

func TestPostEstates_BadCoordinateRejectedBeforeWrite(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{Cache: true, Direct: true})
	ctx := context.Background()

	if _, err := env.Service.LowPricedEstates(ctx); err != nil {
		t.Fatalf("LowPricedEstates: %v", err)
	}
	begins := env.Store.Begins.Load()

	_, err := env.Service.PostEstates(ctx, strings.NewReader("9,北極,,/e9.png,北極点,95,139.70,1,100,100,,1\n"))
	if !errors.Is(err, listing.ErrInvalidInput) || !errors.Is(err, geo.ErrCoordinateRange) {
		t.Fatalf("err=%v want invalid input for latitude 95", err)
	}
	if env.Store.Begins.Load() != begins {
		t.Fatalf("a transaction was opened for an out of range estate")
	}

	if _, err := env.Service.PostEstates(ctx, strings.NewReader("9,格安,,/e9.png,東京都,35.69,139.70,1,100,100,,1\n")); err != nil {
		t.Fatalf("PostEstates: %v", err)
	}
	estates, err := env.Service.LowPricedEstates(ctx)
	if err != nil {
		t.Fatalf("LowPricedEstates: %v", err)
	}
	if estates.Estates[0].ID != 9 {
		t.Fatalf("cached low priced list not invalidated, first id %d", estates.Estates[0].ID)
	}
}

func TestLowPriced(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{Cache: true, Direct: true})
	ctx := context.Background()

	chairs, err := env.Service.LowPricedChairs(ctx)
	if err != nil {
		t.Fatalf("LowPricedChairs: %v", err)
	}
	if len(chairs.Chairs) != 2 || chairs.Chairs[0].ID != 1 || chairs.Chairs[1].ID != 2 {
		t.Fatalf("unexpected chairs: %+v", chairs)
	}

	estates, err := env.Service.LowPricedEstates(ctx)
	if err != nil {
		t.Fatalf("LowPricedEstates: %v", err)
	}
	if len(estates.Estates) != 3 || estates.Estates[0].ID != 3 {
		t.Fatalf("unexpected estates: %+v", estates)
	}
	if !env.Redis.Exists("listing:v1:low_priced:estate") {
		t.Fatalf("low priced estates not cached")
	}

	// buying the last unit of chair 2 drops it from the cached list
	if err := env.Service.BuyChair(ctx, 2, "a@example.com"); err != nil {
		t.Fatalf("BuyChair: %v", err)
	}
	chairs, err = env.Service.LowPricedChairs(ctx)
	if err != nil || len(chairs.Chairs) != 1 {
		t.Fatalf("cached list not invalidated: %+v %v", chairs, err)
	}
}

func TestRecommendedEstates(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	ctx := context.Background()

	got, err := env.Service.RecommendedEstates(ctx, 3)
	if err != nil {
		t.Fatalf("RecommendedEstates: %v", err)
	}
	if len(got.Estates) != 2 || got.Estates[0].ID != 3 || got.Estates[1].ID != 1 {
		t.Fatalf("unexpected estates: %+v", got.Estates)
	}
	if _, err := env.Service.RecommendedEstates(ctx, 99); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing chair: err=%v", err)
	}
}

func TestRequestDoc(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{})
	ctx := context.Background()

	if err := env.Service.RequestDoc(ctx, 1, "a@example.com"); err != nil {
		t.Fatalf("RequestDoc: %v", err)
	}
	if err := env.Service.RequestDoc(ctx, 1, ""); !errors.Is(err, listing.ErrInvalidInput) {
		t.Fatalf("missing email: err=%v", err)
	}
	if err := env.Service.RequestDoc(ctx, 99, "a@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing estate: err=%v", err)
	}
}

func TestConditionDocumentsServedVerbatim(t *testing.T) {
	env := listingtest.New(t, listingtest.Options{Empty: true})
	if string(env.Service.ChairCondition()) != listingtest.ChairCondition {
		t.Fatalf("chair condition changed")
	}
	if string(env.Service.EstateCondition()) != listingtest.EstateCondition {
		t.Fatalf("estate condition changed")
	}
}

func TestDecodePolygon(t *testing.T) {
	poly, err := listing.DecodePolygon(strings.NewReader(`{"coordinates":[{"latitude":35.1,"longitude":139.2}]}`))
	if err != nil || len(poly) != 1 || poly[0].Longitude != 139.2 {
		t.Fatalf("DecodePolygon=%v,%v", poly, err)
	}
	if _, err := listing.DecodePolygon(strings.NewReader(`{"coordinates":[]}`)); !errors.Is(err, nazotte.ErrEmptyPolygon) {
		t.Fatalf("empty coordinates: err=%v", err)
	}
	if _, err := listing.DecodePolygon(strings.NewReader(`{`)); !errors.Is(err, listing.ErrInvalidInput) {
		t.Fatalf("bad json: err=%v", err)
	}
	for _, body := range []string{
		`{"coordinates":[{"latitude":"0)) OR 1=1 --","longitude":1}]}`,
		`{"coordinates":[{"latitude":35.1,"longitude":"139.2, 0 0))'; DROP TABLE estate; --"}]}`,
	} {
		if _, err := listing.DecodePolygon(strings.NewReader(body)); !errors.Is(err, listing.ErrInvalidInput) {
			t.Fatalf("non numeric coordinate %s: err=%v", body, err)
		}
	}
}
