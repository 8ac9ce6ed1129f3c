// Package main provides the one-shot breakout scanner CLI: load bars for a
// ticker universe, evaluate the Ichimoku breakout criteria in parallel and
// export the matches.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"ichiscan/internal/cache"
	chstore "ichiscan/internal/cache/clickhouse"
	"ichiscan/internal/cache/disk"
	"ichiscan/internal/cache/memory"
	"ichiscan/internal/cache/migrations"
	pgstore "ichiscan/internal/cache/postgres"
	"ichiscan/internal/config"
	"ichiscan/internal/domain"
	"ichiscan/internal/loader"
	"ichiscan/internal/marketdata"
	"ichiscan/internal/recorder"
	"ichiscan/internal/report"
	"ichiscan/internal/scan"
)

func main() {
	// Load .env file if exists; real env vars win.
	_ = godotenv.Load()

	cfgPath := os.Getenv("ICHISCAN_CONFIG")
	if cfgPath == "" {
		cfgPath = "ichiscan.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Parse flags (config file and env vars as defaults)
	tickers := flag.String("tickers", "", "Comma-separated ticker universe")
	tickersFile := flag.String("tickers-file", cfg.Server.TickersFile, "File with one ticker per line")
	start := flag.String("start", "", "Range start, YYYY-MM-DD (required)")
	end := flag.String("end", domain.TodaySentinel, "Range end, YYYY-MM-DD or 'today'")

	// Ichimoku / criteria parameters
	tenkan := flag.Int("tenkan", cfg.Scan.Tenkan, "Tenkan-sen period")
	kijun := flag.Int("kijun", cfg.Scan.Kijun, "Kijun-sen period")
	senkou := flag.Int("senkou", cfg.Scan.Senkou, "Senkou span B period")
	lookback := flag.Int("lookback", cfg.Scan.Lookback, "Prior sessions that must not close above the cloud")
	strict := flag.Bool("strict", cfg.Scan.StrictCross, "Require the prior session at-or-below the cloud")

	// Filters
	minPrice := flag.Float64("min-price", cfg.Scan.MinPrice, "Minimum breakout close price (0 disables)")
	minDollarVol := flag.Float64("min-dollar-volume", cfg.Scan.MinAvgDollarVolume, "Minimum 20-day average dollar volume (0 disables)")
	rsiMin := flag.Float64("rsi-min", 0, "RSI band lower bound")
	rsiMax := flag.Float64("rsi-max", 0, "RSI band upper bound (0 disables the band)")
	macd := flag.Bool("macd", false, "Require MACD above its signal line")

	// Execution
	threads := flag.Int("threads", cfg.Scan.Workers, "Parallel scan workers")

	// Cache
	cacheBackend := flag.String("cache", "disk", "Cache backend: memory, disk, postgres, clickhouse")
	cacheDir := flag.String("cache-dir", cfg.Cache.Dir, "Directory for the disk cache")
	postgresDSN := flag.String("postgres-dsn", cfg.Cache.PostgresDSN, "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.Cache.ClickhouseDSN, "ClickHouse connection string")
	clearCache := flag.Bool("clear-cache", false, "Clear the cache and exit")
	cacheSize := flag.Bool("cache-size", false, "Print the cache size in bytes and exit")

	// Output
	csvPath := flag.String("csv", "", "Write matched results as CSV to this file ('-' for stdout)")
	outputJSON := flag.Bool("json", false, "Print the full scan document as JSON")
	sqlitePath := flag.String("sqlite", cfg.History.SQLitePath, "SQLite file for scan history (empty disables)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[scan] ", log.LstdFlags)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling scan...", sig)
		cancel()
	}()

	// Create the cache store
	store, cleanup, err := createStore(ctx, *cacheBackend, *cacheDir, *postgresDSN, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("create cache store: %v", err)
	}
	defer cleanup()

	// Cache administration short-circuits the scan.
	if *clearCache {
		if err := store.Clear(ctx); err != nil {
			logger.Fatalf("clear cache: %v", err)
		}
		logger.Println("Cache cleared")
		return
	}
	if *cacheSize {
		size, err := store.Size(ctx)
		if err != nil {
			logger.Fatalf("cache size: %v", err)
		}
		fmt.Println(size)
		return
	}

	// Resolve the universe and range
	symbols, err := resolveTickers(*tickers, *tickersFile)
	if err != nil {
		logger.Fatalf("resolve tickers: %v", err)
	}
	if len(symbols) == 0 {
		logger.Fatal("--tickers or --tickers-file is required")
	}
	if *start == "" {
		logger.Fatal("--start is required")
	}
	dateRange, err := domain.ParseDateRange(*start, *end, time.Now())
	if err != nil {
		logger.Fatalf("parse range: %v", err)
	}

	scanCfg := &domain.ScanConfig{
		Symbols:            symbols,
		Range:              dateRange,
		TenkanPeriod:       *tenkan,
		KijunPeriod:        *kijun,
		SenkouPeriod:       *senkou,
		Lookback:           *lookback,
		StrictCross:        *strict,
		MinPrice:           *minPrice,
		MinAvgDollarVolume: *minDollarVol,
		MinRSI:             *rsiMin,
		MaxRSI:             *rsiMax,
		MACDPositive:       *macd,
		Workers:            *threads,
	}

	runner := scan.NewRunner(scan.Options{
		Loader: loader.New(store, marketdata.NewYahooProvider(), logger),
		Logger: logger,
	})

	startedAt := time.Now()
	outcomes, err := runner.Run(ctx, scanCfg, nil)
	if err != nil {
		logger.Fatalf("scan failed: %v", err)
	}

	summary := domain.Summarize(outcomes)
	results := domain.MatchedResults(outcomes)

	// Persist history if configured
	if *sqlitePath != "" {
		recordScan(ctx, logger, *sqlitePath, scanCfg, summary, results, startedAt)
	}

	// Export
	if *outputJSON {
		doc, err := report.RenderJSON(dateRange.End, summary, results)
		if err != nil {
			logger.Fatalf("render json: %v", err)
		}
		fmt.Println(string(doc))
	} else {
		printSummary(outcomes, summary, results)
	}

	if *csvPath != "" {
		csv := report.RenderCSV(results)
		if *csvPath == "-" {
			fmt.Print(csv)
		} else if err := os.WriteFile(*csvPath, []byte(csv), 0o644); err != nil {
			logger.Fatalf("write csv: %v", err)
		} else {
			logger.Printf("Wrote %d matches to %s", len(results), *csvPath)
		}
	}

	if summary.Cancelled > 0 {
		os.Exit(130)
	}
}

// createStore builds the requested cache backend. Persistent backends get
// their schema applied on startup; migrations are idempotent.
func createStore(ctx context.Context, backend, dir, postgresDSN, clickhouseDSN string) (cache.Store, func(), error) {
	switch strings.ToLower(backend) {
	case "memory":
		return memory.NewStore(), func() {}, nil

	case "disk":
		store, err := disk.NewStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "postgres":
		if postgresDSN == "" {
			return nil, nil, errors.New("--postgres-dsn is required for the postgres cache")
		}
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		return pgstore.NewStore(pool), pool.Close, nil

	case "clickhouse":
		if clickhouseDSN == "" {
			return nil, nil, errors.New("--clickhouse-dsn is required for the clickhouse cache")
		}
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		return chstore.NewStore(conn), func() { conn.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// resolveTickers merges the comma-separated flag with the tickers file.
// File lines starting with # are comments.
func resolveTickers(tickers, tickersFile string) ([]string, error) {
	var symbols []string

	if tickers != "" {
		symbols = append(symbols, strings.Split(tickers, ",")...)
	}
	if tickersFile != "" {
		data, err := os.ReadFile(tickersFile)
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			symbols = append(symbols, line)
		}
	}
	return symbols, nil
}

// recordScan persists the run to the history database. History failures are
// logged, never fatal: the scan already produced its results.
func recordScan(ctx context.Context, logger *log.Logger, path string, cfg *domain.ScanConfig,
	summary domain.ScanSummary, results []*domain.ScanResult, startedAt time.Time) {

	rec, err := recorder.NewSQLiteRecorder(path)
	if err != nil {
		logger.Printf("[WARN] open history db: %v", err)
		return
	}
	defer rec.Close()

	err = rec.RecordScan(ctx, &recorder.Record{
		ScanID:     uuid.NewString(),
		Config:     cfg,
		Summary:    summary,
		Results:    results,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	})
	if err != nil {
		logger.Printf("[WARN] record scan history: %v", err)
	}
}

// printSummary outputs a human-readable scan report.
func printSummary(outcomes map[string]*domain.ScanOutcome, summary domain.ScanSummary, results []*domain.ScanResult) {
	fmt.Println()
	fmt.Println("=== Scan Summary ===")
	fmt.Printf("Scanned:     %d\n", summary.Scanned)
	fmt.Printf("Matched:     %d\n", summary.Matched)
	fmt.Printf("Not matched: %d\n", summary.NotMatched)
	fmt.Printf("Skipped:     %d\n", summary.Skipped)
	fmt.Printf("Failed:      %d\n", summary.Failed)
	if summary.Cancelled > 0 {
		fmt.Printf("Cancelled:   %d\n", summary.Cancelled)
	}

	if len(results) > 0 {
		fmt.Println()
		fmt.Println("Matches:")
		for _, r := range results {
			fmt.Printf("  %-8s close %.2f vs cloud top %.2f (+%.2f%%), avg $vol %.0f\n",
				r.Symbol, r.CloseY, r.CloudTopY, r.DistancePct, r.AvgDollarVol20)
		}
	}

	var failed []string
	for sym, o := range outcomes {
		if o.Status == domain.StatusFailed {
			failed = append(failed, fmt.Sprintf("  %-8s %v", sym, o.Err))
		}
	}
	if len(failed) > 0 {
		fmt.Println()
		fmt.Println("Failures:")
		for _, line := range failed {
			fmt.Println(line)
		}
	}
}
