// Package listing implements the chair and estate operations served over
// HTTP on top of the catalog, the search engines and the store.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/mohammed-shakir/listing-search/internal/cache"
	"github.com/mohammed-shakir/listing-search/internal/catalog"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/geo"
	"github.com/mohammed-shakir/listing-search/internal/ingest"
	"github.com/mohammed-shakir/listing-search/internal/invalidation"
	"github.com/mohammed-shakir/listing-search/internal/logger"
	"github.com/mohammed-shakir/listing-search/internal/nazotte"
	"github.com/mohammed-shakir/listing-search/internal/projector"
	"github.com/mohammed-shakir/listing-search/internal/search"
	"github.com/mohammed-shakir/listing-search/internal/store"
	"github.com/mohammed-shakir/listing-search/internal/txguard"
)

const (
	LowPricedLimit   = 20
	RecommendedLimit = 20

	txPostChair  = "post_api_chair"
	txPostEstate = "post_api_estate"
	txBuyChair   = "post_api_chair_buy"
)

// ErrInvalidInput covers malformed request bodies and uploads.
var ErrInvalidInput = errors.New("invalid input")

type Deps struct {
	Store         store.Store
	ChairCatalog  *catalog.Catalog
	EstateCatalog *catalog.Catalog
	// Cache may be nil.
	Cache *cache.Results
	// Sink receives write events after commit; nil discards them.
	Sink   invalidation.Sink
	Logger *slog.Logger
}

type Service struct {
	store     store.Store
	chairCat  *catalog.Catalog
	estateCat *catalog.Catalog
	chairs    *search.Engine[model.Chair]
	estates   *search.Engine[model.Estate]
	nazotte   *nazotte.Engine
	cache     *cache.Results
	sink      invalidation.Sink
	log       *slog.Logger
}

func New(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	sink := d.Sink
	if sink == nil {
		sink = invalidation.Nop{}
	}
	return &Service{
		store:     d.Store,
		chairCat:  d.ChairCatalog,
		estateCat: d.EstateCatalog,
		chairs:    search.NewEngine(d.Store.Chairs()),
		estates:   search.NewEngine(d.Store.Estates()),
		nazotte:   nazotte.NewEngine(d.Store, log),
		cache:     d.Cache,
		sink:      sink,
		log:       log,
	}
}

func (s *Service) session() *txguard.Session[store.Tx] {
	return txguard.NewSession(s.store.Begin, s.log)
}

func (s *Service) SearchChairs(ctx context.Context, q url.Values) (projector.ChairPage, error) {
	ctx = logger.WithCollection(ctx, model.CollectionChair)
	res, err := runSearch(ctx, s, s.chairs, s.chairCat, q)
	if err != nil {
		return projector.ChairPage{}, err
	}
	return projector.ChairPage{Count: res.Count, Chairs: projector.Chairs(res.Items)}, nil
}

func (s *Service) SearchEstates(ctx context.Context, q url.Values) (projector.EstatePage, error) {
	ctx = logger.WithCollection(ctx, model.CollectionEstate)
	res, err := runSearch(ctx, s, s.estates, s.estateCat, q)
	if err != nil {
		return projector.EstatePage{}, err
	}
	return projector.EstatePage{Count: res.Count, Estates: projector.Estates(res.Items)}, nil
}

func runSearch[T any](ctx context.Context, s *Service, eng *search.Engine[T], cat *catalog.Catalog, q url.Values) (search.Result[T], error) {
	preds, err := search.Build(search.FilterFromValues(cat.Schema(), q), cat)
	if err != nil {
		s.log.ErrorContext(ctx, "search condition rejected", "err", err)
		return search.Result[T]{}, err
	}
	page, perPage, err := search.ParsePagination(q.Get("page"), q.Get("perPage"))
	if err != nil {
		s.log.ErrorContext(ctx, "pagination rejected", "page", q.Get("page"), "perPage", q.Get("perPage"))
		return search.Result[T]{}, err
	}
	return eng.Search(ctx, preds, page, perPage)
}

// ChairByID treats a chair without stock as missing.
func (s *Service) ChairByID(ctx context.Context, id int64) (projector.Chair, error) {
	c, err := s.store.ChairByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.InfoContext(ctx, "requested chair not found", "id", id)
		}
		return projector.Chair{}, err
	}
	if c.Stock <= 0 {
		s.log.InfoContext(ctx, "requested chair is sold out", "id", id)
		return projector.Chair{}, fmt.Errorf("chair %d: %w", id, store.ErrSoldOut)
	}
	return projector.ProjectChair(c), nil
}

func (s *Service) EstateByID(ctx context.Context, id int64) (projector.Estate, error) {
	e, err := s.store.EstateByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.InfoContext(ctx, "requested estate not found", "id", id)
		}
		return projector.Estate{}, err
	}
	return projector.ProjectEstate(e), nil
}

func (s *Service) LowPricedChairs(ctx context.Context) (projector.ChairList, error) {
	var out projector.ChairList
	if s.cache.LowPriced(ctx, model.CollectionChair, &out) {
		return out, nil
	}
	cs, err := s.store.LowPricedChairs(ctx, LowPricedLimit)
	if err != nil {
		return projector.ChairList{}, err
	}
	out = projector.ChairList{Chairs: projector.Chairs(cs)}
	s.cache.PutLowPriced(ctx, model.CollectionChair, out)
	return out, nil
}

func (s *Service) LowPricedEstates(ctx context.Context) (projector.EstateList, error) {
	var out projector.EstateList
	if s.cache.LowPriced(ctx, model.CollectionEstate, &out) {
		return out, nil
	}
	es, err := s.store.LowPricedEstates(ctx, LowPricedLimit)
	if err != nil {
		return projector.EstateList{}, err
	}
	out = projector.EstateList{Estates: projector.Estates(es)}
	s.cache.PutLowPriced(ctx, model.CollectionEstate, out)
	return out, nil
}

// PostChairs parses the whole upload before opening the transaction and
// inserts every row in it.
func (s *Service) PostChairs(ctx context.Context, r io.Reader) (int, error) {
	chairs, err := ingest.Chairs(r)
	if err != nil {
		s.log.ErrorContext(ctx, "chair upload rejected", "err", err)
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	err = s.session().Run(ctx, txPostChair, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertChairs(ctx, chairs)
	})
	if err != nil {
		return 0, err
	}
	s.sink.Publish(ctx, invalidation.ChairsInserted(chairs))
	return len(chairs), nil
}

func (s *Service) PostEstates(ctx context.Context, r io.Reader) (int, error) {
	estates, err := ingest.Estates(r)
	if err != nil {
		s.log.ErrorContext(ctx, "estate upload rejected", "err", err)
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	err = s.session().Run(ctx, txPostEstate, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertEstates(ctx, estates)
	})
	if err != nil {
		return 0, err
	}
	s.sink.Publish(ctx, invalidation.EstatesInserted(estates))
	return len(estates), nil
}

// BuyChair takes one unit of stock. A chair that is missing or already sold
// out rolls the transaction back and reports store.ErrSoldOut.
func (s *Service) BuyChair(ctx context.Context, id int64, email string) error {
	if email == "" {
		s.log.ErrorContext(ctx, "buy chair rejected: email not found in request body", "id", id)
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	sess := s.session()
	err := sess.Run(ctx, txBuyChair, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockChairInStock(ctx, id); err != nil {
			if errors.Is(err, store.ErrSoldOut) {
				s.log.InfoContext(ctx, "buy chair: sold out", "id", id)
				_ = sess.Rollback(ctx, txBuyChair)
			}
			return err
		}
		return tx.DecrementChairStock(ctx, id)
	})
	if err != nil {
		return err
	}
	s.sink.Publish(ctx, invalidation.ChairStockChanged(id))
	return nil
}

type nazotteRequest struct {
	Coordinates geo.Polygon `json:"coordinates"`
}

// DecodePolygon reads a {"coordinates":[...]} body.
func DecodePolygon(r io.Reader) (geo.Polygon, error) {
	var req nazotteRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if len(req.Coordinates) == 0 {
		return nil, nazotte.ErrEmptyPolygon
	}
	return req.Coordinates, nil
}

func (s *Service) Nazotte(ctx context.Context, poly geo.Polygon) (projector.EstatePage, error) {
	ctx = logger.WithCollection(ctx, model.CollectionEstate)
	if len(poly) == 0 {
		s.log.ErrorContext(ctx, "nazotte rejected: coordinates are empty")
		return projector.EstatePage{}, nazotte.ErrEmptyPolygon
	}

	var out projector.EstatePage
	if s.cache.Nazotte(ctx, poly, &out) {
		return out, nil
	}
	res, err := s.nazotte.Search(ctx, poly)
	if err != nil {
		return projector.EstatePage{}, err
	}
	out = projector.EstatePage{Count: res.Count, Estates: projector.Estates(res.Items)}
	s.cache.PutNazotte(ctx, poly, out)
	return out, nil
}

// RequestDoc accepts a document request for an existing estate.
func (s *Service) RequestDoc(ctx context.Context, id int64, email string) error {
	if email == "" {
		s.log.ErrorContext(ctx, "request document rejected: email not found in request body", "id", id)
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := s.store.EstateByID(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.ErrorContext(ctx, "request document: estate not found", "id", id)
		}
		return err
	}
	return nil
}

// RecommendedEstates lists estates whose door the chair fits through.
func (s *Service) RecommendedEstates(ctx context.Context, chairID int64) (projector.EstateList, error) {
	c, err := s.store.ChairByID(ctx, chairID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.ErrorContext(ctx, "recommended estate: chair not found", "id", chairID)
		}
		return projector.EstateList{}, err
	}
	w1, w2 := c.DoorFit()
	es, err := s.store.RecommendedEstates(ctx, w1, w2, RecommendedLimit)
	if err != nil {
		return projector.EstateList{}, err
	}
	return projector.EstateList{Estates: projector.Estates(es)}, nil
}

func (s *Service) ChairCondition() json.RawMessage  { return s.chairCat.Document() }
func (s *Service) EstateCondition() json.RawMessage { return s.estateCat.Document() }

func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }
