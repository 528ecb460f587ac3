// Package model defines the listing records shared across the service.
package model

import "sort"

const (
	CollectionChair  = "chair"
	CollectionEstate = "estate"
)

type Chair struct {
	ID          int64
	Name        string
	Description string
	Thumbnail   string
	Price       int64
	Height      int64
	Width       int64
	Depth       int64
	Color       string
	Features    string
	Kind        string
	Popularity  int64
	Stock       int64
}

// Column returns the stored value for a chair column name, or nil when the
// column is unknown.
func (c Chair) Column(name string) any {
	switch name {
	case "id":
		return c.ID
	case "name":
		return c.Name
	case "description":
		return c.Description
	case "thumbnail":
		return c.Thumbnail
	case "price":
		return c.Price
	case "height":
		return c.Height
	case "width":
		return c.Width
	case "depth":
		return c.Depth
	case "color":
		return c.Color
	case "features":
		return c.Features
	case "kind":
		return c.Kind
	case "popularity":
		return c.Popularity
	case "stock":
		return c.Stock
	}
	return nil
}

// DoorFit returns the two smallest chair dimensions, largest first: the
// opening an estate door must admit for the chair to pass through.
func (c Chair) DoorFit() (w1, w2 int64) {
	dims := []int64{c.Width, c.Height, c.Depth}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })
	return dims[1], dims[0]
}

type Estate struct {
	ID          int64
	Name        string
	Description string
	Thumbnail   string
	Address     string
	Latitude    float64
	Longitude   float64
	Rent        int64
	DoorHeight  int64
	DoorWidth   int64
	Features    string
	Popularity  int64
}

// W1 is the larger door dimension.
func (e Estate) W1() int64 { return max(e.DoorHeight, e.DoorWidth) }

// W2 is the smaller door dimension.
func (e Estate) W2() int64 { return min(e.DoorHeight, e.DoorWidth) }

func (e Estate) Column(name string) any {
	switch name {
	case "id":
		return e.ID
	case "name":
		return e.Name
	case "description":
		return e.Description
	case "thumbnail":
		return e.Thumbnail
	case "address":
		return e.Address
	case "latitude":
		return e.Latitude
	case "longitude":
		return e.Longitude
	case "rent":
		return e.Rent
	case "door_height":
		return e.DoorHeight
	case "door_width":
		return e.DoorWidth
	case "features":
		return e.Features
	case "popularity":
		return e.Popularity
	case "w1":
		return e.W1()
	case "w2":
		return e.W2()
	}
	return nil
}
