package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const estateDoc = `{
  "doorWidth":  {"prefix":"","suffix":"cm","ranges":[{"id":0,"min":-1,"max":80},{"id":1,"min":80,"max":110},{"id":2,"min":110,"max":-1}]},
  "doorHeight": {"prefix":"","suffix":"cm","ranges":[{"id":0,"min":-1,"max":80},{"id":1,"min":80,"max":-1}]},
  "rent":       {"prefix":"","suffix":"円","ranges":[{"id":0,"min":-1,"max":50000},{"id":1,"min":50000,"max":-1}]},
  "feature":    {"list":["最上階","防音室"]}
}`

func TestParse_EstateDocument(t *testing.T) {
	c, err := Parse(EstateSchema, []byte(estateDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r, ok := c.Bucket("doorWidth", 2)
	if !ok || r.Min != 110 || r.Max != Unbounded {
		t.Fatalf("Bucket(doorWidth,2)=%+v,%v", r, ok)
	}
	if _, ok := c.Bucket("doorWidth", 3); ok {
		t.Fatalf("index past end must not resolve")
	}
	if _, ok := c.Bucket("doorWidth", -1); ok {
		t.Fatalf("negative index must not resolve")
	}
	if string(c.Document()) != estateDoc {
		t.Fatalf("document not kept verbatim")
	}
}

func TestParse_RejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"missing dim":   `{"doorWidth":{"ranges":[{"id":0,"min":-1,"max":-1}]},"rent":{"ranges":[{"id":0,"min":-1,"max":-1}]}}`,
		"empty ranges":  `{"doorWidth":{"ranges":[]},"doorHeight":{"ranges":[{"id":0,"min":-1,"max":-1}]},"rent":{"ranges":[{"id":0,"min":-1,"max":-1}]}}`,
		"min >= max":    `{"doorWidth":{"ranges":[{"id":0,"min":80,"max":80}]},"doorHeight":{"ranges":[{"id":0,"min":-1,"max":-1}]},"rent":{"ranges":[{"id":0,"min":-1,"max":-1}]}}`,
		"id mismatch":   `{"doorWidth":{"ranges":[{"id":1,"min":-1,"max":80}]},"doorHeight":{"ranges":[{"id":0,"min":-1,"max":-1}]},"rent":{"ranges":[{"id":0,"min":-1,"max":-1}]}}`,
		"bound too low": `{"doorWidth":{"ranges":[{"id":0,"min":-5,"max":80}]},"doorHeight":{"ranges":[{"id":0,"min":-1,"max":-1}]},"rent":{"ranges":[{"id":0,"min":-1,"max":-1}]}}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(EstateSchema, []byte(doc)); !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("err=%v want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estate_condition.json")
	if err := os.WriteFile(path, []byte(estateDoc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(EstateSchema, path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(EstateSchema, filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
