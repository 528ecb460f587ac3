package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/listing-search/internal/search"
)

const (
	chairColumns  = "id, name, description, thumbnail, price, height, width, depth, color, features, kind, popularity, stock"
	estateColumns = "id, name, description, thumbnail, address, latitude, longitude, rent, door_height, door_width, features, popularity"

	estatesInBoxSQL = "SELECT " + estateColumns + " FROM estate" +
		" WHERE latitude <= $1 AND latitude >= $2 AND longitude <= $3 AND longitude >= $4"

	// Polygon and ids are parameters so the statement text never varies.
	estateIDsInPolygonSQL = "SELECT id FROM estate" +
		" WHERE id = ANY($1) AND ST_Contains(ST_GeomFromText($2, 4326), ST_PointFromGeoHash(geo_hash))"

	chairByIDSQL  = "SELECT " + chairColumns + " FROM chair WHERE id = $1"
	estateByIDSQL = "SELECT " + estateColumns + " FROM estate WHERE id = $1"

	lowPricedChairsSQL  = "SELECT " + chairColumns + " FROM chair WHERE stock > 0 ORDER BY price ASC, id ASC LIMIT $1"
	lowPricedEstatesSQL = "SELECT " + estateColumns + " FROM estate ORDER BY rent ASC, id ASC LIMIT $1"

	recommendedEstatesSQL = "SELECT " + estateColumns + " FROM estate" +
		" WHERE w1 >= $1 AND w2 >= $2 ORDER BY popularity DESC, id ASC LIMIT $3"

	lockChairSQL      = "SELECT " + chairColumns + " FROM chair WHERE id = $1 AND stock > 0 FOR UPDATE"
	decrementStockSQL = "UPDATE chair SET stock = stock - 1 WHERE id = $1"

	insertEstateSQL = "INSERT INTO estate (" + estateColumns + ", geo_hash, w1, w2)" +
		" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12," +
		" ST_GeoHash(ST_SetSRID(ST_MakePoint($7, $6), 4326), 12), $13, $14)"
)

var chairCopyColumns = strings.Split(chairColumns, ", ")

// filterable lists the columns predicates and orderings may reference.
var filterable = map[string]map[string]bool{
	"chair": {
		"id": true, "price": true, "height": true, "width": true, "depth": true,
		"color": true, "features": true, "kind": true, "popularity": true, "stock": true,
	},
	"estate": {
		"id": true, "rent": true, "door_height": true, "door_width": true,
		"features": true, "popularity": true, "w1": true, "w2": true,
	},
}

// renderWhere renders predicates as a WHERE clause with $n placeholders,
// numbering from 1.
func renderWhere(table string, preds []search.Predicate) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}
	cols := filterable[table]
	parts := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))
	for _, p := range preds {
		if !cols[p.Column] {
			return "", nil, fmt.Errorf("column %q not filterable on %s", p.Column, table)
		}
		args = append(args, p.Value)
		ph := "$" + strconv.Itoa(len(args))
		switch p.Op {
		case search.OpContains:
			parts = append(parts, "strpos("+p.Column+", "+ph+") > 0")
		case search.OpGTE, search.OpLT, search.OpEQ, search.OpGT:
			parts = append(parts, p.Column+" "+p.Op.String()+" "+ph)
		default:
			return "", nil, fmt.Errorf("unsupported operator %v", p.Op)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func renderOrder(table string, order []search.OrderBy) (string, error) {
	if len(order) == 0 {
		return "", nil
	}
	cols := filterable[table]
	parts := make([]string, 0, len(order))
	for _, o := range order {
		if !cols[o.Column] {
			return "", fmt.Errorf("column %q not sortable on %s", o.Column, table)
		}
		dir := " ASC"
		if o.Dir == search.Desc {
			dir = " DESC"
		}
		parts = append(parts, o.Column+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func countSQL(table string, preds []search.Predicate) (string, []any, error) {
	where, args, err := renderWhere(table, preds)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + table + where, args, nil
}

func fetchSQL(table, columns string, preds []search.Predicate, page search.Page) (string, []any, error) {
	where, args, err := renderWhere(table, preds)
	if err != nil {
		return "", nil, err
	}
	order, err := renderOrder(table, page.Order)
	if err != nil {
		return "", nil, err
	}
	args = append(args, page.Limit, page.Offset)
	n := len(args)
	return "SELECT " + columns + " FROM " + table + where + order +
		" LIMIT $" + strconv.Itoa(n-1) + " OFFSET $" + strconv.Itoa(n), args, nil
}
