// Package invalidation carries listing write events to the result cache,
// either in process or through Kafka.
package invalidation

import (
	"errors"
	"fmt"
	"time"

	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/geo"
)

const (
	OpInsert = "insert"
	OpStock  = "stock"
)

type Event struct {
	Version    int              `json:"version"`
	Collection string           `json:"collection"`
	Op         string           `json:"op"`
	TS         time.Time        `json:"ts"`
	Points     []geo.Coordinate `json:"points,omitempty"`
	IDs        []int64          `json:"ids,omitempty"`
	Seq        uint64           `json:"seq"`
	Source     string           `json:"source,omitempty"`
}

func NewEvent(collection, op string, ids []int64, points []geo.Coordinate) Event {
	return Event{
		Version:    1,
		Collection: collection,
		Op:         op,
		TS:         time.Now().UTC(),
		Points:     points,
		IDs:        ids,
	}
}

// EstatesInserted builds the event for a committed estate upload.
func EstatesInserted(estates []model.Estate) Event {
	ids := make([]int64, len(estates))
	points := make([]geo.Coordinate, len(estates))
	for i, e := range estates {
		ids[i] = e.ID
		points[i] = geo.Coordinate{Latitude: e.Latitude, Longitude: e.Longitude}
	}
	return NewEvent(model.CollectionEstate, OpInsert, ids, points)
}

func ChairsInserted(chairs []model.Chair) Event {
	ids := make([]int64, len(chairs))
	for i, c := range chairs {
		ids[i] = c.ID
	}
	return NewEvent(model.CollectionChair, OpInsert, ids, nil)
}

func ChairStockChanged(id int64) Event {
	return NewEvent(model.CollectionChair, OpStock, []int64{id}, nil)
}

// Validate checks the event header. Points are filtered by ValidPoints.
func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	switch e.Collection {
	case model.CollectionChair, model.CollectionEstate:
	default:
		return fmt.Errorf("unknown collection %q", e.Collection)
	}
	switch e.Op {
	case OpInsert:
	case OpStock:
		if e.Collection != model.CollectionChair {
			return errors.New("stock events apply to chairs only")
		}
	default:
		return fmt.Errorf("op must be insert|stock, got %q", e.Op)
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	return nil
}

// ValidPoints splits the event's points into usable ones and the count of
// points rejected by geo.Coordinate.Validate.
func (e Event) ValidPoints() (valid []geo.Coordinate, rejected int) {
	valid = make([]geo.Coordinate, 0, len(e.Points))
	for _, p := range e.Points {
		if p.Validate() != nil {
			rejected++
			continue
		}
		valid = append(valid, p)
	}
	return valid, rejected
}
