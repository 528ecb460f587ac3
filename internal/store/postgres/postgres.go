// Package postgres is the PostgreSQL/PostGIS listing store built on a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammed-shakir/listing-search/internal/core/config"
	"github.com/mohammed-shakir/listing-search/internal/core/model"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/geo"
	"github.com/mohammed-shakir/listing-search/internal/search"
	"github.com/mohammed-shakir/listing-search/internal/store"
)

const DriverName = "postgres"

func init() {
	store.Register(DriverName, func(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
		if cfg.DBMigrate {
			if err := Migrate(cfg.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}
		return New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	})
}

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(ctx context.Context, databaseURL string, maxConns int, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(min(maxConns, 1<<15))
	}
	poolConfig.HealthCheckPeriod = 30 * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connected", "max_conns", poolConfig.MaxConns)
	return &Store{pool: pool, logger: logger}, nil
}

// observe records the latency of one named query.
func observe(query string, start time.Time, err error) {
	observability.ObserveStoreQuery(query, err, time.Since(start).Seconds())
}

func scanChair(row pgx.CollectableRow) (model.Chair, error) {
	var c model.Chair
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Thumbnail, &c.Price, &c.Height,
		&c.Width, &c.Depth, &c.Color, &c.Features, &c.Kind, &c.Popularity, &c.Stock)
	return c, err
}

func scanEstate(row pgx.CollectableRow) (model.Estate, error) {
	var e model.Estate
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Thumbnail, &e.Address, &e.Latitude,
		&e.Longitude, &e.Rent, &e.DoorHeight, &e.DoorWidth, &e.Features, &e.Popularity)
	return e, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryRows[T any](ctx context.Context, q querier, name string, scan func(pgx.CollectableRow) (T, error), sql string, args ...any) (out []T, err error) {
	start := time.Now()
	defer func() { observe(name, start, err) }()

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	out, err = pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func queryOne[T any](ctx context.Context, q querier, name string, scan func(pgx.CollectableRow) (T, error), sql string, args ...any) (out T, err error) {
	start := time.Now()
	defer func() { observe(name, start, err) }()

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	out, err = pgx.CollectOneRow(rows, scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, err
	}
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

type source[T any] struct {
	pool    *pgxpool.Pool
	table   string
	columns string
	scan    func(pgx.CollectableRow) (T, error)
}

func (s source[T]) Count(ctx context.Context, preds []search.Predicate) (n int64, err error) {
	sql, args, err := countSQL(s.table, preds)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	defer func() { observe(s.table+"_count", start, err) }()
	if err = s.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s count: %w", s.table, err)
	}
	return n, nil
}

func (s source[T]) Fetch(ctx context.Context, preds []search.Predicate, page search.Page) ([]T, error) {
	sql, args, err := fetchSQL(s.table, s.columns, preds, page)
	if err != nil {
		return nil, err
	}
	return queryRows(ctx, s.pool, s.table+"_search", s.scan, sql, args...)
}

func (s *Store) Chairs() search.Source[model.Chair] {
	return source[model.Chair]{pool: s.pool, table: "chair", columns: chairColumns, scan: scanChair}
}

func (s *Store) Estates() search.Source[model.Estate] {
	return source[model.Estate]{pool: s.pool, table: "estate", columns: estateColumns, scan: scanEstate}
}

func (s *Store) EstatesInBox(ctx context.Context, box geo.BoundingBox, order []search.OrderBy) ([]model.Estate, error) {
	orderBy, err := renderOrder("estate", order)
	if err != nil {
		return nil, err
	}
	return queryRows(ctx, s.pool, "estate_in_box", scanEstate, estatesInBoxSQL+orderBy,
		box.MaxLat, box.MinLat, box.MaxLon, box.MinLon)
}

func (s *Store) EstateIDsInPolygon(ctx context.Context, ids []int64, poly geo.Polygon) ([]int64, error) {
	// an arealess ring contains nothing and is rejected by ST_GeomFromText
	if len(ids) == 0 || poly.Degenerate() {
		return nil, nil
	}
	text, err := poly.WKT()
	if err != nil {
		return nil, err
	}
	return queryRows(ctx, s.pool, "estate_in_polygon", pgx.RowTo[int64], estateIDsInPolygonSQL, ids, text)
}

func (s *Store) ChairByID(ctx context.Context, id int64) (model.Chair, error) {
	c, err := queryOne(ctx, s.pool, "chair_by_id", scanChair, chairByIDSQL, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, fmt.Errorf("chair %d: %w", id, store.ErrNotFound)
	}
	return c, err
}

func (s *Store) EstateByID(ctx context.Context, id int64) (model.Estate, error) {
	e, err := queryOne(ctx, s.pool, "estate_by_id", scanEstate, estateByIDSQL, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, fmt.Errorf("estate %d: %w", id, store.ErrNotFound)
	}
	return e, err
}

func (s *Store) LowPricedChairs(ctx context.Context, limit int) ([]model.Chair, error) {
	return queryRows(ctx, s.pool, "chair_low_priced", scanChair, lowPricedChairsSQL, limit)
}

func (s *Store) LowPricedEstates(ctx context.Context, limit int) ([]model.Estate, error) {
	return queryRows(ctx, s.pool, "estate_low_priced", scanEstate, lowPricedEstatesSQL, limit)
}

func (s *Store) RecommendedEstates(ctx context.Context, w1, w2 int64, limit int) ([]model.Estate, error) {
	return queryRows(ctx, s.pool, "estate_recommended", scanEstate, recommendedEstatesSQL, w1, w2, limit)
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (t *pgTx) InsertChairs(ctx context.Context, chairs []model.Chair) (err error) {
	start := time.Now()
	defer func() { observe("chair_insert", start, err) }()

	_, err = t.tx.CopyFrom(ctx, pgx.Identifier{"chair"}, chairCopyColumns,
		pgx.CopyFromSlice(len(chairs), func(i int) ([]any, error) {
			c := chairs[i]
			return []any{c.ID, c.Name, c.Description, c.Thumbnail, c.Price, c.Height,
				c.Width, c.Depth, c.Color, c.Features, c.Kind, c.Popularity, c.Stock}, nil
		}))
	if isUniqueViolation(err) {
		return fmt.Errorf("insert chairs: %w", store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert chairs: %w", err)
	}
	return nil
}

func (t *pgTx) InsertEstates(ctx context.Context, estates []model.Estate) (err error) {
	start := time.Now()
	defer func() { observe("estate_insert", start, err) }()

	batch := &pgx.Batch{}
	for _, e := range estates {
		batch.Queue(insertEstateSQL, e.ID, e.Name, e.Description, e.Thumbnail, e.Address,
			e.Latitude, e.Longitude, e.Rent, e.DoorHeight, e.DoorWidth, e.Features, e.Popularity,
			e.W1(), e.W2())
	}
	br := t.tx.SendBatch(ctx, batch)
	for _, e := range estates {
		if _, err = br.Exec(); err != nil {
			_ = br.Close()
			if isUniqueViolation(err) {
				return fmt.Errorf("insert estate %d: %w", e.ID, store.ErrConflict)
			}
			return fmt.Errorf("insert estate %d: %w", e.ID, err)
		}
	}
	if err = br.Close(); err != nil {
		return fmt.Errorf("insert estates: %w", err)
	}
	return nil
}

func (t *pgTx) LockChairInStock(ctx context.Context, id int64) (model.Chair, error) {
	c, err := queryOne(ctx, t.tx, "chair_lock", scanChair, lockChairSQL, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, fmt.Errorf("chair %d: %w", id, store.ErrSoldOut)
	}
	return c, err
}

func (t *pgTx) DecrementChairStock(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { observe("chair_decrement_stock", start, err) }()

	tag, err := t.tx.Exec(ctx, decrementStockSQL, id)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chair %d: %w", id, store.ErrNotFound)
	}
	return nil
}
