package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/listing-search/internal/cache"
	"github.com/mohammed-shakir/listing-search/internal/cache/cellindex"
	"github.com/mohammed-shakir/listing-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/listing-search/internal/catalog"
	"github.com/mohammed-shakir/listing-search/internal/core/config"
	"github.com/mohammed-shakir/listing-search/internal/core/health"
	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/core/server"
	"github.com/mohammed-shakir/listing-search/internal/invalidation"
	"github.com/mohammed-shakir/listing-search/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/listing-search/internal/invalidation/kafkapublisher"
	"github.com/mohammed-shakir/listing-search/internal/listing"
	"github.com/mohammed-shakir/listing-search/internal/logger"
	h3mapper "github.com/mohammed-shakir/listing-search/internal/mapper/h3"
	"github.com/mohammed-shakir/listing-search/internal/metrics"
	"github.com/mohammed-shakir/listing-search/internal/store"
	_ "github.com/mohammed-shakir/listing-search/internal/store/memory"
	_ "github.com/mohammed-shakir/listing-search/internal/store/postgres"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	driverFlag := flag.String("store", "", "store driver: "+strings.Join(store.Drivers(), "|"))
	migrateFlag := flag.Bool("migrate", false, "apply database migrations on start")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}
	if *driverFlag != "" {
		cfg.StoreDriver = strings.TrimSpace(*driverFlag)
	}
	if *migrateFlag {
		cfg.DBMigrate = true
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Driver:    cfg.StoreDriver,
		Component: "listing-search",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.SetDriver(cfg.StoreDriver)
	observability.ExposeBuildInfo(Version)
	appLog.Info("starting listing search",
		"addr", cfg.Addr,
		"version", Version,
		"store", cfg.StoreDriver,
		"cache", cfg.RedisAddr != "",
		"invalidation", cfg.Invalidation.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chairCat, err := catalog.Load(catalog.ChairSchema, cfg.ChairConditionPath)
	if err != nil {
		appLog.Error("chair condition load failed", "path", cfg.ChairConditionPath, "err", err)
		return 1
	}
	estateCat, err := catalog.Load(catalog.EstateSchema, cfg.EstateConditionPath)
	if err != nil {
		appLog.Error("estate condition load failed", "path", cfg.EstateConditionPath, "err", err)
		return 1
	}

	st, err := store.Open(ctx, cfg.StoreDriver, cfg, appLog)
	if err != nil {
		appLog.Error("store setup failed", "driver", cfg.StoreDriver, "err", err)
		return 1
	}
	defer st.Close()

	checks := []health.Check{{Name: "store", Ping: st.Ping}}

	var results *cache.Results
	if cfg.RedisAddr != "" {
		cli, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = cli.Close() }()
		mapper, err := h3mapper.New(cfg.NazotteCellRes, cfg.NazotteMaxCells)
		if err != nil {
			appLog.Error("h3 mapper setup failed", "err", err)
			return 1
		}
		results = cache.New(cli, cellindex.NewRedisIndex(cli), mapper, cache.Config{
			OpTimeout:    cfg.CacheOpTimeout,
			LowPricedTTL: cfg.CacheTTLLowPriced,
			NazotteTTL:   cfg.CacheTTLNazotte,
		}, appLog.With("component", "cache"))
		checks = append(checks, health.Check{Name: "redis", Ping: cli.Ping})
	}

	sink, closeSink, err := setupInvalidation(ctx, cfg, results, appLog)
	if err != nil {
		appLog.Error("invalidation setup failed", "err", err)
		return 1
	}
	defer closeSink()

	svc := listing.New(listing.Deps{
		Store:         st,
		ChairCatalog:  chairCat,
		EstateCatalog: estateCat,
		Cache:         results,
		Sink:          sink,
		Logger:        appLog,
	})

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.MetricsAddr,
			Path:    cfg.MetricsPath,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		metricsHandler = p.Handler()
		if cfg.MetricsAddr != "" && cfg.MetricsAddr != cfg.Addr {
			go serveMetrics(ctx, cfg.MetricsAddr, cfg.MetricsPath, metricsHandler, appLog)
		}
	}

	handler := server.NewHandler(appLog, svc, server.Options{Metrics: metricsHandler, Checks: checks})
	if err := server.Run(ctx, cfg, appLog, handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// setupInvalidation picks where write events go. With Kafka every instance
// both publishes its own writes and consumes everyone's.
func setupInvalidation(ctx context.Context, cfg config.Config, results *cache.Results, log *slog.Logger) (invalidation.Sink, func(), error) {
	noop := func() {}
	if !cfg.Invalidation.Enabled || results == nil {
		return invalidation.Nop{}, noop, nil
	}
	applier := invalidation.NewApplier(results, log.With("component", "invalidation"))

	switch cfg.Invalidation.Driver {
	case "direct", "":
		return invalidation.NewDirect(applier, log), noop, nil
	case "kafka":
		brokers := config.SplitCSV(cfg.Invalidation.Brokers)
		pub, err := kafkapublisher.New(brokers, cfg.Invalidation.Topic, 1024, log)
		if err != nil {
			return nil, noop, err
		}
		consumer := kafkaconsumer.New(kafkaconsumer.FromAppConfig(cfg.Invalidation), log, applier)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("kafka invalidation consumer stopped", "err", err)
			}
		}()
		return pub, func() {
			if err := pub.Close(); err != nil {
				log.Warn("kafka publisher close failed", "err", err)
			}
		}, nil
	default:
		return nil, noop, errors.New("unknown invalidation driver " + cfg.Invalidation.Driver)
	}
}

func serveMetrics(ctx context.Context, addr, path string, h http.Handler, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics: shutdown error", "err", err)
		}
	}()
	log.Info("metrics: listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server exited", "err", err)
	}
}
