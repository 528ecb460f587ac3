package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/listing-search/internal/geo"
)

// target is one precomputed request in the workload pool.
type target struct {
	Kind  string
	Label string
	body  []byte
	query url.Values
}

func (t target) request(ctx context.Context, base string) (*http.Request, error) {
	base = strings.TrimRight(base, "/")
	switch t.Kind {
	case "nazotte":
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/estate/nazotte", bytes.NewReader(t.body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	default:
		return http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/chair/search?"+t.query.Encode(), nil)
	}
}

var centers = []geo.Coordinate{
	{Latitude: 35.6812, Longitude: 139.7671}, // Tokyo
	{Latitude: 34.7025, Longitude: 135.4959}, // Osaka
	{Latitude: 35.1709, Longitude: 136.8815}, // Nagoya
	{Latitude: 43.0687, Longitude: 141.3508}, // Sapporo
}

// makePolygons returns count polygons: a hot quarter drawn near the city
// centers, the rest scattered over Japan. Each polygon is a jittered
// hexagon so both the box prefilter and the exact test matter.
func makePolygons(count int, r *rand.Rand) []geo.Polygon {
	out := make([]geo.Polygon, 0, count)
	hot := max(8, count/4)
	for i := 0; i < hot && len(out) < count; i++ {
		c := centers[i%len(centers)]
		c.Latitude += (r.Float64() - 0.5) * 0.10
		c.Longitude += (r.Float64() - 0.5) * 0.10
		out = append(out, hexagon(c, 0.02+r.Float64()*0.04, r))
	}
	for len(out) < count {
		c := geo.Coordinate{
			Latitude:  31 + r.Float64()*(44-31),
			Longitude: 130 + r.Float64()*(145-130),
		}
		out = append(out, hexagon(c, 0.02+r.Float64()*0.10, r))
	}
	return out
}

func hexagon(c geo.Coordinate, radius float64, r *rand.Rand) geo.Polygon {
	poly := make(geo.Polygon, 6)
	for i := range poly {
		a := float64(i) * math.Pi / 3
		rad := radius * (0.8 + 0.4*r.Float64())
		poly[i] = geo.Coordinate{
			Latitude:  c.Latitude + rad*math.Sin(a),
			Longitude: c.Longitude + rad*math.Cos(a),
		}
	}
	return poly
}

func nazotteTargets(polys []geo.Polygon) ([]target, error) {
	out := make([]target, 0, len(polys))
	for i, p := range polys {
		b, err := json.Marshal(map[string]geo.Polygon{"coordinates": p})
		if err != nil {
			return nil, fmt.Errorf("encode polygon %d: %w", i, err)
		}
		box, err := p.Bounds()
		if err != nil {
			return nil, err
		}
		out = append(out, target{Kind: "nazotte", Label: box.String(), body: b})
	}
	return out, nil
}

// searchTargets builds chair searches over a catalog with the given number
// of buckets per range dimension.
func searchTargets(count, buckets int, r *rand.Rand) []target {
	dims := []string{"priceRangeId", "heightRangeId", "widthRangeId", "depthRangeId"}
	out := make([]target, 0, count)
	for range count {
		q := url.Values{}
		q.Set(dims[r.Intn(len(dims))], strconv.Itoa(r.Intn(buckets)))
		q.Set("page", strconv.Itoa(r.Intn(3)))
		q.Set("perPage", "25")
		out = append(out, target{Kind: "search", Label: q.Encode(), query: q})
	}
	return out
}

// mix interleaves a and b so that roughly ratio of the pool is taken from a.
func mix(a, b []target, ratio float64) []target {
	out := make([]target, 0, len(a)+len(b))
	var ai, bi int
	for ai < len(a) || bi < len(b) {
		wantA := float64(ai+1) <= ratio*float64(len(out)+1)
		switch {
		case ai < len(a) && (wantA || bi >= len(b)):
			out = append(out, a[ai])
			ai++
		default:
			out = append(out, b[bi])
			bi++
		}
	}
	return out
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
