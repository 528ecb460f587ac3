package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Config struct {
	BaseURL         string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	Polygons        int
	Searches        int
	Buckets         int
	NazotteRatio    float64
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "target", "http://localhost:1323", "listing search base URL")
	flag.IntVar(&cfg.Concurrency, "concurrency", 32, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.Polygons, "polygons", 128, "Distinct nazotte polygons in pool")
	flag.IntVar(&cfg.Searches, "searches", 128, "Distinct chair searches in pool")
	flag.IntVar(&cfg.Buckets, "buckets", 4, "Buckets per chair range dimension")
	flag.Float64Var(&cfg.NazotteRatio, "nazotte-ratio", 0.5, "Share of nazotte requests in the pool")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/listing", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append UTC timestamp to output prefix")
	flag.Parse()
	return cfg
}

// request result (one sample per request)
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	Kind      string
	Index     int
	Label     string
}

type summary struct {
	StartTime     time.Time          `json:"start"`
	EndTime       time.Time          `json:"end"`
	DurationSec   float64            `json:"duration_sec"`
	TotalRequests int64              `json:"total"`
	SuccessCount  int64              `json:"success"`
	ErrorCount    int64              `json:"errors"`
	ThroughputRPS float64            `json:"throughput_rps"`
	P50Ms         float64            `json:"p50_ms"`
	P95Ms         float64            `json:"p95_ms"`
	P99Ms         float64            `json:"p99_ms"`
	PerKindP95Ms  map[string]float64 `json:"per_kind_p95_ms"`
	Concurrency   int                `json:"concurrency"`
	ZipfS         float64            `json:"zipf_s"`
	ZipfV         float64            `json:"zipf_v"`
	Pool          int                `json:"pool"`
	BaseURL       string             `json:"target"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	latMs   []float64
	perKind map[string][]float64
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	// precompute random workload
	seed := time.Now().UnixNano()
	r := rand.New(rand.NewSource(seed))

	naz, err := nazotteTargets(makePolygons(cfg.Polygons, r))
	if err != nil {
		log.Fatalf("build polygons: %v", err)
	}
	pool := mix(naz, searchTargets(cfg.Searches, cfg.Buckets, r), cfg.NazotteRatio)
	if len(pool) == 0 {
		log.Fatalf("empty workload")
	}
	imax := uint64(len(pool)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "error", "kind", "idx", "label"})
		agg := aggregatedResult{latMs: make([]float64, 0, 1<<20), perKind: map[string][]float64{}}
		for s := range samplesChan {
			agg.total++
			ms := float64(s.Latency.Microseconds()) / 1000.0
			if s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300 {
				agg.success++
				agg.latMs = append(agg.latMs, ms)
				agg.perKind[s.Kind] = append(agg.perKind[s.Kind], ms)
			} else {
				agg.errors++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", ms),
				fmt.Sprintf("%d", s.Status),
				s.ErrorMsg,
				s.Kind,
				fmt.Sprintf("%d", s.Index),
				s.Label,
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- agg
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) pool=%d nazotte-ratio=%.2f",
		cfg.BaseURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(pool), cfg.NazotteRatio)

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()
			rWorker := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipfDist := rand.NewZipf(rWorker, cfg.ZipfS, cfg.ZipfV, imax)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				v := zipfDist.Uint64()
				if v > uint64(math.MaxInt) || int(v) >= len(pool) {
					continue
				}
				idx := int(v)
				t := pool[idx]

				result := sample{Timestamp: time.Now(), Kind: t.Kind, Index: idx, Label: t.Label}
				req, err := t.request(ctx, cfg.BaseURL)
				if err != nil {
					result.ErrorMsg = err.Error()
				} else {
					resp, err := httpClient.Do(req)
					if err != nil {
						result.ErrorMsg = err.Error()
					} else {
						result.Status = resp.StatusCode
						_, _ = io.Copy(io.Discard, resp.Body)
						_ = resp.Body.Close()
						if resp.StatusCode < 200 || resp.StatusCode >= 300 {
							result.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
						}
					}
				}
				result.Latency = time.Since(result.Timestamp)

				select {
				case samplesChan <- result:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	perKind := make(map[string]float64, len(agg.perKind))
	for k, v := range agg.perKind {
		sort.Float64s(v)
		perKind[k] = percentile(v, 95)
	}

	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		PerKindP95Ms:  perKind,
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Pool:          len(pool),
		BaseURL:       strings.TrimRight(cfg.BaseURL, "/"),
	}

	jsonFile, err := os.Create(filepath.Clean(jsonPath))
	if err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		agg.total, agg.success, agg.errors, runSummary.ThroughputRPS, runSummary.P50Ms, runSummary.P95Ms, runSummary.P99Ms)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}
