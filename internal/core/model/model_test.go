package model

import "testing"

func TestChairDoorFit(t *testing.T) {
	cases := []struct {
		name   string
		c      Chair
		w1, w2 int64
	}{
		{"ordered", Chair{Width: 50, Height: 100, Depth: 60}, 60, 50},
		{"tall depth", Chair{Width: 80, Height: 40, Depth: 120}, 80, 40},
		{"equal", Chair{Width: 70, Height: 70, Depth: 70}, 70, 70},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w1, w2 := tc.c.DoorFit()
			if w1 != tc.w1 || w2 != tc.w2 {
				t.Fatalf("DoorFit()=(%d,%d) want (%d,%d)", w1, w2, tc.w1, tc.w2)
			}
		})
	}
}

func TestEstateDoorWidths(t *testing.T) {
	e := Estate{DoorHeight: 90, DoorWidth: 180}
	if e.W1() != 180 || e.W2() != 90 {
		t.Fatalf("W1/W2=(%d,%d) want (180,90)", e.W1(), e.W2())
	}
	if e.Column("w1") != int64(180) || e.Column("door_height") != int64(90) {
		t.Fatalf("Column lookup mismatch")
	}
	if e.Column("geo_hash") != nil {
		t.Fatalf("unknown column should be nil")
	}
}

func TestChairColumn(t *testing.T) {
	c := Chair{ID: 3, Kind: "ゲーミングチェア", Stock: 2}
	if c.Column("kind") != "ゲーミングチェア" || c.Column("stock") != int64(2) {
		t.Fatalf("Column lookup mismatch")
	}
}
