// Package router maps the listing HTTP API onto the listing service.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/listing-search/internal/geo"
	"github.com/mohammed-shakir/listing-search/internal/listing"
	"github.com/mohammed-shakir/listing-search/internal/nazotte"
	"github.com/mohammed-shakir/listing-search/internal/projector"
	"github.com/mohammed-shakir/listing-search/internal/search"
	"github.com/mohammed-shakir/listing-search/internal/store"
)

// maxUpload bounds a multipart CSV upload held in memory.
const maxUpload = 32 << 20

// Service is the listing API the handlers serve.
type Service interface {
	SearchChairs(ctx context.Context, q url.Values) (projector.ChairPage, error)
	SearchEstates(ctx context.Context, q url.Values) (projector.EstatePage, error)
	ChairByID(ctx context.Context, id int64) (projector.Chair, error)
	EstateByID(ctx context.Context, id int64) (projector.Estate, error)
	LowPricedChairs(ctx context.Context) (projector.ChairList, error)
	LowPricedEstates(ctx context.Context) (projector.EstateList, error)
	PostChairs(ctx context.Context, r io.Reader) (int, error)
	PostEstates(ctx context.Context, r io.Reader) (int, error)
	BuyChair(ctx context.Context, id int64, email string) error
	Nazotte(ctx context.Context, poly geo.Polygon) (projector.EstatePage, error)
	RequestDoc(ctx context.Context, id int64, email string) error
	RecommendedEstates(ctx context.Context, chairID int64) (projector.EstateList, error)
	ChairCondition() json.RawMessage
	EstateCondition() json.RawMessage
}

type handlers struct {
	svc Service
	log *slog.Logger
}

// Mount registers the listing routes on r.
func Mount(r chi.Router, svc Service, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, log: logger}

	r.Route("/api/chair", func(r chi.Router) {
		r.Get("/search", h.searchChairs)
		r.Get("/search/condition", h.chairCondition)
		r.Get("/low_priced", h.lowPricedChairs)
		r.Post("/", h.postChairs)
		r.Post("/buy/{id}", h.buyChair)
		r.Get("/{id}", h.chairByID)
	})
	r.Route("/api/estate", func(r chi.Router) {
		r.Get("/search", h.searchEstates)
		r.Get("/search/condition", h.estateCondition)
		r.Get("/low_priced", h.lowPricedEstates)
		r.Post("/", h.postEstates)
		r.Post("/nazotte", h.nazotte)
		r.Post("/req_doc/{id}", h.requestDoc)
		r.Get("/{id}", h.estateByID)
	})
	r.Get("/api/recommended_estate/{id}", h.recommendedEstates)
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
	var rangeErr *search.InvalidRangeIndexError
	switch {
	case errors.As(err, &rangeErr),
		errors.Is(err, search.ErrInvalidRangeIndex),
		errors.Is(err, search.ErrNoSearchCondition),
		errors.Is(err, search.ErrInvalidPagination),
		errors.Is(err, nazotte.ErrEmptyPolygon),
		errors.Is(err, listing.ErrInvalidInput),
		errors.Is(err, errBadID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrSoldOut):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

var errBadID = errors.New("invalid id")

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	http.Error(w, http.StatusText(code), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, doc json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

func (h *handlers) pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.log.ErrorContext(r.Context(), "request parameter \"id\" parse error", "id", raw)
		return 0, errBadID
	}
	return id, nil
}

type emailBody struct {
	Email string `json:"email"`
}

func decodeEmail(r *http.Request) string {
	var b emailBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		return ""
	}
	return b.Email
}

func (h *handlers) searchChairs(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.SearchChairs(r.Context(), r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) searchEstates(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.SearchEstates(r.Context(), r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) chairByID(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.ChairByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handlers) estateByID(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.EstateByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handlers) lowPricedChairs(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.LowPricedChairs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) lowPricedEstates(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.LowPricedEstates(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) upload(w http.ResponseWriter, r *http.Request, field string, post func(context.Context, io.Reader) (int, error)) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		h.log.ErrorContext(r.Context(), "failed to get form file", "err", err)
		h.fail(w, r, listing.ErrInvalidInput)
		return
	}
	f, _, err := r.FormFile(field)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to get form file", "field", field, "err", err)
		h.fail(w, r, listing.ErrInvalidInput)
		return
	}
	defer func() { _ = f.Close() }()

	n, err := post(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.InfoContext(r.Context(), "listings uploaded", "field", field, "rows", n)
	w.WriteHeader(http.StatusCreated)
}

func (h *handlers) postChairs(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "chairs", h.svc.PostChairs)
}

func (h *handlers) postEstates(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "estates", h.svc.PostEstates)
}

func (h *handlers) buyChair(w http.ResponseWriter, r *http.Request) {
	email := decodeEmail(r)
	id, err := h.pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.BuyChair(r.Context(), id, email); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) nazotte(w http.ResponseWriter, r *http.Request) {
	poly, err := listing.DecodePolygon(r.Body)
	if err != nil {
		h.log.ErrorContext(r.Context(), "nazotte request rejected", "err", err)
		h.fail(w, r, err)
		return
	}
	out, err := h.svc.Nazotte(r.Context(), poly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) requestDoc(w http.ResponseWriter, r *http.Request) {
	email := decodeEmail(r)
	id, err := h.pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.RequestDoc(r.Context(), id, email); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) recommendedEstates(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.svc.RecommendedEstates(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) chairCondition(w http.ResponseWriter, _ *http.Request) {
	writeRaw(w, h.svc.ChairCondition())
}

func (h *handlers) estateCondition(w http.ResponseWriter, _ *http.Request) {
	writeRaw(w, h.svc.EstateCondition())
}
