package cellindex

import (
	"context"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/listing-search/internal/cache/keys"
	"github.com/mohammed-shakir/listing-search/internal/cache/redisstore"
)

func newIndex(t *testing.T) (CellIndex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return NewRedisIndex(cli), mr
}

func TestAddAndKeys(t *testing.T) {
	idx, mr := newIndex(t)
	ctx := context.Background()

	if err := idx.Add(ctx, 6, []string{"c1", "c2"}, "result:a", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add(ctx, 6, []string{"c2", "c3"}, "result:b", time.Minute); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := idx.Keys(ctx, 6, []string{"c2"})
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "result:a" || got[1] != "result:b" {
		t.Fatalf("Keys(c2)=%v", got)
	}

	got, _ = idx.Keys(ctx, 6, []string{"c1", "c9"})
	if len(got) != 1 || got[0] != "result:a" {
		t.Fatalf("Keys(c1,c9)=%v", got)
	}

	if got, _ := idx.Keys(ctx, 7, []string{"c1"}); len(got) != 0 {
		t.Fatalf("resolutions must not share sets: %v", got)
	}

	if ttl := mr.TTL(keys.CellIndex(6, "c3")); ttl != time.Minute {
		t.Fatalf("cell set ttl=%v", ttl)
	}
}

func TestKeys_NoCells(t *testing.T) {
	idx, _ := newIndex(t)
	got, err := idx.Keys(context.Background(), 6, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("Keys(nil)=%v,%v", got, err)
	}
}
