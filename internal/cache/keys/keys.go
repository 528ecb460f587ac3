// Package keys builds the Redis keys of the listing result cache.
package keys

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/listing-search/internal/geo"
)

const prefix = "listing:v1"

// LowPriced is the key of a collection's low priced listing.
func LowPriced(collection string) string {
	return prefix + ":low_priced:" + sanitize(collection)
}

// Nazotte keys a polygon search by a hash of its canonical coordinate text,
// so the same polygon always maps to the same key.
func Nazotte(poly geo.Polygon) string {
	text := canonicalPolygon(poly)
	return fmt.Sprintf("%s:nazotte:n=%d:h=%016x", prefix, len(poly), xxhash.Sum64String(text))
}

// CellIndex is the set of result keys cached under one H3 cell.
func CellIndex(res int, cell string) string {
	return prefix + ":cell:" + strconv.Itoa(res) + ":" + sanitize(cell)
}

func canonicalPolygon(poly geo.Polygon) string {
	var b strings.Builder
	b.Grow(len(poly) * 40)
	for i, c := range poly {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.FormatFloat(c.Longitude, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(c.Latitude, 'g', -1, 64))
	}
	return b.String()
}

// sanitize keeps key segments to [a-z0-9_-] so caller input cannot add
// separators.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		switch {
		case r >= 'A' && r <= 'Z':
			out = r + ('a' - 'A')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
		default:
			out = '-'
		}
		if out == '-' && prev == '-' {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}
