package projector

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
)

func TestEstateJSON_CamelCaseDoors(t *testing.T) {
	b, err := json.Marshal(EstatePage{Count: 1, Estates: Estates([]model.Estate{{ID: 7, DoorHeight: 200, DoorWidth: 90}})})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"count":1`, `"doorHeight":200`, `"doorWidth":90`, `"id":7`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}
	for _, banned := range []string{"door_height", "door_width", "geo_hash", `"w1"`, `"w2"`} {
		if strings.Contains(s, banned) {
			t.Fatalf("internal field %s leaked: %s", banned, s)
		}
	}
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	b, _ := json.Marshal(ChairList{Chairs: Chairs(nil)})
	if string(b) != `{"chairs":[]}` {
		t.Fatalf("got %s", b)
	}
}

func TestChairProjectionIdentity(t *testing.T) {
	c := model.Chair{ID: 1, Name: "n", Price: 2, Height: 3, Width: 4, Depth: 5, Color: "黒", Features: "f", Kind: "k", Popularity: 6, Stock: 7}
	p := ProjectChair(c)
	if p.ID != 1 || p.Price != 2 || p.Depth != 5 || p.Color != "黒" || p.Stock != 7 || p.Kind != "k" {
		t.Fatalf("projection=%+v", p)
	}
}
