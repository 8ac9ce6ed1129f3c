// Package main provides the scanner dashboard server:
// - Scan API: start, inspect, cancel and stream asynchronous scans
// - Cache administration: size and clear
// - Scheduled scans: cron-driven runs over a tickers file
// - Prometheus metrics and health endpoints
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

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
	"ichiscan/internal/observability"
	"ichiscan/internal/recorder"
	"ichiscan/internal/report"
	"ichiscan/internal/scan"
)

// Server wires the scan manager, cache store and HTTP surface together.
type Server struct {
	cfg     *config.Config
	store   cache.Store
	manager *scan.Manager
	metrics *observability.Metrics
	logger  *log.Logger

	upgrader websocket.Upgrader
	started  time.Time
}

func main() {
	// Load .env file if exists; real env vars win.
	_ = godotenv.Load()

	cfgPath := flag.String("config", "ichiscan.yaml", "Path to YAML config")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	cacheBackend := flag.String("cache", "disk", "Cache backend: memory, disk, postgres, clickhouse")
	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the cache store
	store, cleanup, err := createStore(ctx, *cacheBackend, cfg)
	if err != nil {
		logger.Fatalf("create cache store: %v", err)
	}
	defer cleanup()

	// Create history recorder
	var rec recorder.Recorder
	if cfg.History.SQLitePath != "" {
		sqliteRec, err := recorder.NewSQLiteRecorder(cfg.History.SQLitePath)
		if err != nil {
			logger.Fatalf("open history db: %v", err)
		}
		defer sqliteRec.Close()
		rec = sqliteRec
	}

	// Create runner and manager
	metrics := observability.NewMetrics("")
	runner := scan.NewRunner(scan.Options{
		Loader:  loader.New(store, marketdata.NewYahooProvider(), logger),
		Logger:  logger,
		Metrics: metrics,
	})
	manager := scan.NewManager(runner, rec, logger)

	server := &Server{
		cfg:     cfg,
		store:   store,
		manager: manager,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		started: time.Now(),
	}

	// Scheduled scans
	scheduler, err := server.startScheduler()
	if err != nil {
		logger.Fatalf("start scheduler: %v", err)
	}
	if scheduler != nil {
		defer scheduler.Stop()
	}

	// Cache size gauge refresh
	go server.refreshCacheMetric(ctx)

	// HTTP server
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.routes(),
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}
	}()

	logger.Printf("Listening on %s", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createStore builds the configured cache backend, applying migrations for
// the persistent ones.
func createStore(ctx context.Context, backend string, cfg *config.Config) (cache.Store, func(), error) {
	switch strings.ToLower(backend) {
	case "memory":
		return memory.NewStore(), func() {}, nil

	case "disk":
		store, err := disk.NewStore(cfg.Cache.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "postgres":
		if cfg.Cache.PostgresDSN == "" {
			return nil, nil, errors.New("postgres cache requires a DSN (config cache.postgres_dsn or POSTGRES_DSN)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Cache.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		return pgstore.NewStore(pool), pool.Close, nil

	case "clickhouse":
		if cfg.Cache.ClickhouseDSN == "" {
			return nil, nil, errors.New("clickhouse cache requires a DSN (config cache.clickhouse_dsn or CLICKHOUSE_DSN)")
		}
		conn, err := chstore.NewConn(ctx, cfg.Cache.ClickhouseDSN)
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

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("POST /api/scans", s.handleStartScan)
	mux.HandleFunc("GET /api/scans", s.handleListScans)
	mux.HandleFunc("GET /api/scans/{id}", s.handleGetScan)
	mux.HandleFunc("DELETE /api/scans/{id}", s.handleCancelScan)
	mux.HandleFunc("GET /api/scans/{id}/results.csv", s.handleScanCSV)
	mux.HandleFunc("GET /api/scans/{id}/stream", s.handleScanStream)

	mux.HandleFunc("GET /api/cache", s.handleCacheInfo)
	mux.HandleFunc("DELETE /api/cache", s.handleCacheClear)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// scanRequest is the POST /api/scans payload.
type scanRequest struct {
	Tickers            []string `json:"tickers"`
	Start              string   `json:"start"`
	End                string   `json:"end"`
	Tenkan             int      `json:"tenkan"`
	Kijun              int      `json:"kijun"`
	Senkou             int      `json:"senkou"`
	Lookback           int      `json:"lookback"`
	StrictCross        *bool    `json:"strict_cross"`
	MinPrice           float64  `json:"min_price"`
	MinAvgDollarVolume float64  `json:"min_avg_dollar_volume"`
	RSIMin             float64  `json:"rsi_min"`
	RSIMax             float64  `json:"rsi_max"`
	MACDPositive       bool     `json:"macd_positive"`
	Workers            int      `json:"workers"`
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.End == "" {
		req.End = domain.TodaySentinel
	}
	dateRange, err := domain.ParseDateRange(req.Start, req.End, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	strict := s.cfg.Scan.StrictCross
	if req.StrictCross != nil {
		strict = *req.StrictCross
	}
	cfg := &domain.ScanConfig{
		Symbols:            req.Tickers,
		Range:              dateRange,
		TenkanPeriod:       req.Tenkan,
		KijunPeriod:        req.Kijun,
		SenkouPeriod:       req.Senkou,
		Lookback:           req.Lookback,
		StrictCross:        strict,
		MinPrice:           req.MinPrice,
		MinAvgDollarVolume: req.MinAvgDollarVolume,
		MinRSI:             req.RSIMin,
		MaxRSI:             req.RSIMax,
		MACDPositive:       req.MACDPositive,
		Workers:            req.Workers,
	}

	job, err := s.manager.Start(cfg)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	s.logger.Printf("Started scan %s: %d symbols", job.ID, len(cfg.Symbols))
	writeJSON(w, http.StatusAccepted, jobView(job, false))
}

func (s *Server) handleListScans(w http.ResponseWriter, _ *http.Request) {
	jobs := s.manager.List()
	views := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView(job, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": views})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, jobView(job, true))
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if err := s.manager.Cancel(job.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Printf("Cancelled scan %s", job.ID)
	writeJSON(w, http.StatusOK, map[string]string{"scan_id": job.ID, "state": "cancelling"})
}

func (s *Server) handleScanCSV(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	outcomes := job.Outcomes()
	if outcomes == nil {
		writeError(w, http.StatusConflict, errors.New("scan still running"))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".csv"))
	fmt.Fprint(w, report.RenderCSV(domain.MatchedResults(outcomes)))
}

// handleScanStream upgrades to a WebSocket and forwards progress snapshots
// until the job reaches a terminal state.
func (s *Server) handleScanStream(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	snapshots, unsubscribe := job.Progress.Subscribe()
	defer unsubscribe()

	// Current state first, so late subscribers see something immediately.
	if err := conn.WriteJSON(job.Progress.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case snap := <-snapshots:
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			// Terminal check between updates; push the final snapshot.
			if job.State() != scan.JobRunning {
				_ = conn.WriteJSON(job.Progress.Snapshot())
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.State())))
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	size, err := s.store.Size(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.CacheSizeBytes.Set(float64(size))
	writeJSON(w, http.StatusOK, map[string]int64{"size_bytes": size})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.metrics.CacheSizeBytes.Set(0)
	s.logger.Println("Cache cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// lookupJob resolves the {id} path segment, writing 404 on unknown scans.
func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*scan.Job, bool) {
	job, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, scan.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return nil, false
	}
	return job, true
}

// jobView renders a job for the API. Results are only attached on detail
// views of finished jobs.
func jobView(job *scan.Job, detail bool) map[string]any {
	view := map[string]any{
		"scan_id":    job.ID,
		"state":      job.State(),
		"progress":   job.Progress.Snapshot(),
		"started_at": job.StartedAt,
		"symbols":    len(job.Config.Symbols),
	}
	if finished := job.FinishedAt(); !finished.IsZero() {
		view["finished_at"] = finished
	}
	if err := job.Err(); err != nil {
		view["error"] = err.Error()
	}

	if outcomes := job.Outcomes(); outcomes != nil {
		view["summary"] = domain.Summarize(outcomes)
		if detail {
			view["results"] = domain.MatchedResults(outcomes)
		}
	}
	return view
}

// startScheduler wires the cron-driven scan when both a schedule and a
// tickers file are configured.
func (s *Server) startScheduler() (*cron.Cron, error) {
	if s.cfg.Server.ScheduleCron == "" {
		return nil, nil
	}
	if s.cfg.Server.TickersFile == "" {
		return nil, errors.New("schedule_cron requires tickers_file")
	}

	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(s.cfg.Server.ScheduleCron, s.runScheduledScan)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", s.cfg.Server.ScheduleCron, err)
	}
	c.Start()
	s.logger.Printf("Scheduled scans enabled: %s (%s)", s.cfg.Server.ScheduleCron, s.cfg.Server.TickersFile)
	return c, nil
}

// runScheduledScan starts a scan over the configured tickers file, covering
// the trailing year up to today.
func (s *Server) runScheduledScan() {
	symbols, err := readTickersFile(s.cfg.Server.TickersFile)
	if err != nil {
		s.logger.Printf("scheduled scan: read tickers: %v", err)
		return
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cfg := &domain.ScanConfig{
		Symbols: symbols,
		Range: domain.DateRange{
			Start: today.AddDate(-1, 0, 0),
			End:   today,
		},
		TenkanPeriod:       s.cfg.Scan.Tenkan,
		KijunPeriod:        s.cfg.Scan.Kijun,
		SenkouPeriod:       s.cfg.Scan.Senkou,
		Lookback:           s.cfg.Scan.Lookback,
		StrictCross:        s.cfg.Scan.StrictCross,
		MinPrice:           s.cfg.Scan.MinPrice,
		MinAvgDollarVolume: s.cfg.Scan.MinAvgDollarVolume,
		Workers:            s.cfg.Scan.Workers,
	}

	job, err := s.manager.Start(cfg)
	if err != nil {
		s.logger.Printf("scheduled scan: %v", err)
		return
	}
	s.logger.Printf("Scheduled scan %s started: %d symbols", job.ID, len(symbols))
}

// refreshCacheMetric keeps the cache size gauge roughly current.
func (s *Server) refreshCacheMetric(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if size, err := s.store.Size(ctx); err == nil {
				s.metrics.CacheSizeBytes.Set(float64(size))
			}
		}
	}
}

// readTickersFile reads one ticker per line; # starts a comment.
func readTickersFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var symbols []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbols = append(symbols, line)
	}
	return symbols, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
