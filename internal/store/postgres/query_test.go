package postgres

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/mohammed-shakir/listing-search/internal/geo"
	"github.com/mohammed-shakir/listing-search/internal/search"
)

func TestFetchSQL_RendersPlaceholdersInOrder(t *testing.T) {
	preds := []search.Predicate{
		{Column: "price", Op: search.OpGTE, Value: int64(3000)},
		{Column: "price", Op: search.OpLT, Value: int64(6000)},
		{Column: "features", Op: search.OpContains, Value: "肘掛け"},
		{Column: "stock", Op: search.OpGT, Value: int64(0)},
	}
	sql, args, err := fetchSQL("chair", chairColumns, preds, search.Page{Limit: 25, Offset: 50, Order: search.CanonicalOrder})
	if err != nil {
		t.Fatalf("fetchSQL: %v", err)
	}
	want := "SELECT " + chairColumns + " FROM chair" +
		" WHERE price >= $1 AND price < $2 AND strpos(features, $3) > 0 AND stock > $4" +
		" ORDER BY popularity DESC, id ASC LIMIT $5 OFFSET $6"
	if sql != want {
		t.Fatalf("sql=\n%s\nwant\n%s", sql, want)
	}
	wantArgs := []any{int64(3000), int64(6000), "肘掛け", int64(0), 25, 50}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("args=%v want %v", args, wantArgs)
	}
}

func TestCountSQL_SharesWhereClause(t *testing.T) {
	preds := []search.Predicate{{Column: "door_width", Op: search.OpLT, Value: int64(80)}}
	sql, args, err := countSQL("estate", preds)
	if err != nil {
		t.Fatalf("countSQL: %v", err)
	}
	if sql != "SELECT COUNT(*) FROM estate WHERE door_width < $1" || len(args) != 1 {
		t.Fatalf("sql=%q args=%v", sql, args)
	}
	if sql, _, _ := countSQL("estate", nil); sql != "SELECT COUNT(*) FROM estate" {
		t.Fatalf("empty predicates sql=%q", sql)
	}
}

func TestRenderWhere_RejectsUnknownColumn(t *testing.T) {
	_, _, err := renderWhere("chair", []search.Predicate{{Column: "price; DROP TABLE chair", Op: search.OpEQ, Value: 1}})
	if err == nil {
		t.Fatalf("expected error for unknown column")
	}
	if _, err := renderOrder("estate", []search.OrderBy{{Column: "geo_hash"}}); err == nil {
		t.Fatalf("geo_hash must not be sortable")
	}
}

func TestPolygonSQL_Constant(t *testing.T) {
	if strings.Contains(estateIDsInPolygonSQL, "POLYGON") {
		t.Fatalf("polygon must be bound, not embedded: %s", estateIDsInPolygonSQL)
	}
	if !strings.Contains(estateIDsInPolygonSQL, "id = ANY($1)") ||
		!strings.Contains(estateIDsInPolygonSQL, "ST_GeomFromText($2, 4326)") ||
		!strings.Contains(estateIDsInPolygonSQL, "ST_PointFromGeoHash(geo_hash)") {
		t.Fatalf("unexpected polygon sql: %s", estateIDsInPolygonSQL)
	}
}

func TestBoxSQL_InclusiveBounds(t *testing.T) {
	order, err := renderOrder("estate", search.CanonicalOrder)
	if err != nil {
		t.Fatalf("renderOrder: %v", err)
	}
	got := estatesInBoxSQL + order
	if !strings.HasSuffix(got, "WHERE latitude <= $1 AND latitude >= $2 AND longitude <= $3 AND longitude >= $4 ORDER BY popularity DESC, id ASC") {
		t.Fatalf("box sql=%s", got)
	}
}

func TestInsertEstateSQL_DerivesGeoHash(t *testing.T) {
	if !strings.Contains(insertEstateSQL, "ST_GeoHash(ST_SetSRID(ST_MakePoint($7, $6), 4326), 12)") {
		t.Fatalf("geo hash not derived from longitude/latitude: %s", insertEstateSQL)
	}
	if strings.Count(insertEstateSQL, "$") != 16 {
		t.Fatalf("unexpected placeholder count in %s", insertEstateSQL)
	}
}

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@h:5432/db?sslmode=disable": "pgx5://u:p@h:5432/db?sslmode=disable",
		"postgresql://u@h/db":                      "pgx5://u@h/db",
		"pgx5://u@h/db":                            "pgx5://u@h/db",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q)=%q want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d migration files, want up and down", len(entries))
	}
	up, err := migrationsFS.ReadFile("migrations/000001_listing_schema.up.sql")
	if err != nil {
		t.Fatalf("read up: %v", err)
	}
	if !strings.Contains(string(up), "CREATE EXTENSION IF NOT EXISTS postgis") {
		t.Fatalf("up migration must enable postgis")
	}
}

func TestEstateIDsInPolygon_DegenerateRingSkipsQuery(t *testing.T) {
	// a nil pool proves no statement is sent
	s := &Store{}
	line := geo.Polygon{
		{Latitude: 35.60, Longitude: 139.60},
		{Latitude: 35.80, Longitude: 139.90},
		{Latitude: 35.60, Longitude: 139.60},
	}
	ids, err := s.EstateIDsInPolygon(context.Background(), []int64{1, 2}, line)
	if err != nil || len(ids) != 0 {
		t.Fatalf("ids=%v err=%v want empty", ids, err)
	}
}
