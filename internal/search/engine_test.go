package search

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
)

type fakeSource struct {
	count      int64
	items      []int
	countPreds []Predicate
	fetchPreds []Predicate
	page       Page
	calls      int
	err        error
}

func (f *fakeSource) Count(_ context.Context, preds []Predicate) (int64, error) {
	f.calls++
	f.countPreds = preds
	return f.count, f.err
}

func (f *fakeSource) Fetch(_ context.Context, preds []Predicate, page Page) ([]int, error) {
	f.calls++
	f.fetchPreds = preds
	f.page = page
	return f.items, nil
}

func TestEngineSearch_SharesPredicatesAndPages(t *testing.T) {
	src := &fakeSource{count: 42, items: []int{7, 8}}
	preds := []Predicate{{Column: "rent", Op: OpLT, Value: int64(50000)}}

	res, err := NewEngine[int](src).Search(context.Background(), preds, 2, 25)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Count != 42 || !reflect.DeepEqual(res.Items, []int{7, 8}) {
		t.Fatalf("result=%+v", res)
	}
	if !reflect.DeepEqual(src.countPreds, src.fetchPreds) {
		t.Fatalf("count and fetch saw different predicates")
	}
	if src.page.Limit != 25 || src.page.Offset != 50 {
		t.Fatalf("page=%+v want limit 25 offset 50", src.page)
	}
	if !reflect.DeepEqual(src.page.Order, CanonicalOrder) {
		t.Fatalf("order=%+v", src.page.Order)
	}
}

func TestEngineSearch_EmptyItemsNotNil(t *testing.T) {
	src := &fakeSource{count: 3}
	res, err := NewEngine[int](src).Search(context.Background(), nil, 9, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Items == nil || len(res.Items) != 0 || res.Count != 3 {
		t.Fatalf("result=%+v", res)
	}
}

func TestEngineSearch_InvalidPaginationSkipsStore(t *testing.T) {
	cases := []struct{ page, perPage int }{
		{-1, 10}, {0, 0}, {0, -5}, {math.MaxInt, 2},
	}
	for _, tc := range cases {
		src := &fakeSource{}
		_, err := NewEngine[int](src).Search(context.Background(), nil, tc.page, tc.perPage)
		if !errors.Is(err, ErrInvalidPagination) {
			t.Fatalf("page=%d perPage=%d err=%v", tc.page, tc.perPage, err)
		}
		if src.calls != 0 {
			t.Fatalf("store called on invalid pagination")
		}
	}
}

func TestEngineSearch_CountErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewEngine[int](&fakeSource{err: boom}).Search(context.Background(), nil, 0, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want wrapped boom", err)
	}
}

func TestParsePagination(t *testing.T) {
	if p, pp, err := ParsePagination("3", "20"); err != nil || p != 3 || pp != 20 {
		t.Fatalf("ParsePagination=%d,%d,%v", p, pp, err)
	}
	for _, tc := range [][2]string{{"", "20"}, {"x", "20"}, {"0", ""}, {"0", "0"}, {"-1", "5"}} {
		if _, _, err := ParsePagination(tc[0], tc[1]); !errors.Is(err, ErrInvalidPagination) {
			t.Fatalf("ParsePagination(%q,%q) err=%v", tc[0], tc[1], err)
		}
	}
}
