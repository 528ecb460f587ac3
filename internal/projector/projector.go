// Package projector maps stored listing rows onto the public JSON shape.
package projector

import "github.com/mohammed-shakir/listing-search/internal/core/model"

type Chair struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	Price       int64  `json:"price"`
	Height      int64  `json:"height"`
	Width       int64  `json:"width"`
	Depth       int64  `json:"depth"`
	Color       string `json:"color"`
	Features    string `json:"features"`
	Kind        string `json:"kind"`
	Popularity  int64  `json:"popularity"`
	Stock       int64  `json:"stock"`
}

// Estate exposes door dimensions in camel case; geo_hash, w1 and w2 stay
// internal.
type Estate struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Thumbnail   string  `json:"thumbnail"`
	Address     string  `json:"address"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Rent        int64   `json:"rent"`
	DoorHeight  int64   `json:"doorHeight"`
	DoorWidth   int64   `json:"doorWidth"`
	Features    string  `json:"features"`
	Popularity  int64   `json:"popularity"`
}

type ChairPage struct {
	Count  int64   `json:"count"`
	Chairs []Chair `json:"chairs"`
}

type EstatePage struct {
	Count   int64    `json:"count"`
	Estates []Estate `json:"estates"`
}

type ChairList struct {
	Chairs []Chair `json:"chairs"`
}

type EstateList struct {
	Estates []Estate `json:"estates"`
}

func ProjectChair(c model.Chair) Chair {
	return Chair{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Thumbnail:   c.Thumbnail,
		Price:       c.Price,
		Height:      c.Height,
		Width:       c.Width,
		Depth:       c.Depth,
		Color:       c.Color,
		Features:    c.Features,
		Kind:        c.Kind,
		Popularity:  c.Popularity,
		Stock:       c.Stock,
	}
}

func ProjectEstate(e model.Estate) Estate {
	return Estate{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Thumbnail:   e.Thumbnail,
		Address:     e.Address,
		Latitude:    e.Latitude,
		Longitude:   e.Longitude,
		Rent:        e.Rent,
		DoorHeight:  e.DoorHeight,
		DoorWidth:   e.DoorWidth,
		Features:    e.Features,
		Popularity:  e.Popularity,
	}
}

func Chairs(cs []model.Chair) []Chair {
	out := make([]Chair, len(cs))
	for i, c := range cs {
		out[i] = ProjectChair(c)
	}
	return out
}

func Estates(es []model.Estate) []Estate {
	out := make([]Estate, len(es))
	for i, e := range es {
		out[i] = ProjectEstate(e)
	}
	return out
}
