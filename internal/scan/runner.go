// Package scan orchestrates breakout detection across a symbol universe
// using a bounded worker pool.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ichiscan/internal/criteria"
	"ichiscan/internal/domain"
	"ichiscan/internal/filter"
	"ichiscan/internal/indicator"
	"ichiscan/internal/loader"
	"ichiscan/internal/observability"
)

// Runner executes scans: per symbol, Load → Compute → Evaluate → Filter,
// producing exactly one ScanOutcome. One symbol's failure never aborts the
// scan.
type Runner struct {
	loader  *loader.Loader
	logger  *log.Logger
	metrics *observability.Metrics
}

// Options configures a Runner. Logger and Metrics may be nil.
type Options struct {
	Loader  *loader.Loader
	Logger  *log.Logger
	Metrics *observability.Metrics
}

// NewRunner creates a scan runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		loader:  opts.Loader,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Run scans the configured universe and returns one outcome per requested
// symbol. InvalidConfig aborts before any symbol is processed. Cancelling
// ctx stops dispatching new symbols; symbols never started are reported
// as CANCELLED and in-flight symbols finish or bail out, so the returned
// mapping always accounts for every symbol exactly once.
func (r *Runner) Run(ctx context.Context, cfg *domain.ScanConfig, progress *Progress) (map[string]*domain.ScanOutcome, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = NewProgress(len(cfg.Symbols))
	}

	started := time.Now()
	if r.metrics != nil {
		r.metrics.ActiveScans.Inc()
		defer r.metrics.ActiveScans.Dec()
	}
	crit := &criteria.Breakout{Lookback: cfg.Lookback, StrictCross: cfg.StrictCross}
	filters := filter.FromConfig(cfg)

	r.logger.Printf("scan started: %d symbols, %d workers, lookback=%d strict=%v",
		len(cfg.Symbols), cfg.Workers, cfg.Lookback, cfg.StrictCross)

	jobs := make(chan string)
	results := make(chan *domain.ScanOutcome, len(cfg.Symbols))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				results <- r.scanSymbol(ctx, cfg, crit, filters, symbol)
			}
		}()
	}

	// Dispatcher: the cancellation token is checked before each new
	// symbol's pipeline begins; not-yet-started symbols become CANCELLED.
	go func() {
		defer close(jobs)
		for i, symbol := range cfg.Symbols {
			select {
			case <-ctx.Done():
				for _, rest := range cfg.Symbols[i:] {
					results <- &domain.ScanOutcome{
						Symbol: rest,
						Status: domain.StatusCancelled,
						Reason: "scan cancelled before symbol started",
					}
				}
				return
			case jobs <- symbol:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make(map[string]*domain.ScanOutcome, len(cfg.Symbols))
	for outcome := range results {
		outcomes[outcome.Symbol] = outcome
		progress.Complete(fmt.Sprintf("%s: %s", outcome.Symbol, outcome.Status))
		if r.metrics != nil {
			r.metrics.SymbolsScanned.WithLabelValues(string(outcome.Status)).Inc()
		}
	}

	summary := domain.Summarize(outcomes)
	progress.SetStatus(fmt.Sprintf("done: %d matched / %d scanned", summary.Matched, summary.Scanned))
	r.logger.Printf("scan finished in %v: %d matched, %d not matched, %d skipped, %d failed, %d cancelled",
		time.Since(started).Round(time.Millisecond),
		summary.Matched, summary.NotMatched, summary.Skipped, summary.Failed, summary.Cancelled)
	if r.metrics != nil {
		r.metrics.ScansTotal.Inc()
		r.metrics.ScanDuration.Observe(time.Since(started).Seconds())
	}
	return outcomes, nil
}

// scanSymbol runs one symbol's pipeline. A panic anywhere inside the
// pipeline is converted into a FAILED outcome so it cannot take down the
// whole scan.
func (r *Runner) scanSymbol(ctx context.Context, cfg *domain.ScanConfig, crit *criteria.Breakout, filters []filter.Filter, symbol string) (outcome *domain.ScanOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = &domain.ScanOutcome{
				Symbol: symbol,
				Status: domain.StatusFailed,
				Err:    fmt.Errorf("panic scanning %s: %v", symbol, rec),
			}
		}
	}()

	series, err := r.loader.Load(ctx, symbol, cfg.Range)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &domain.ScanOutcome{
				Symbol: symbol,
				Status: domain.StatusCancelled,
				Reason: "scan cancelled while loading",
			}
		}
		return &domain.ScanOutcome{Symbol: symbol, Status: domain.StatusFailed, Err: err}
	}

	if series.Len() < cfg.MinBars() {
		return &domain.ScanOutcome{
			Symbol: symbol,
			Status: domain.StatusSkipped,
			Reason: fmt.Sprintf("insufficient history: %d bars, need %d", series.Len(), cfg.MinBars()),
		}
	}

	lines := indicator.ComputeIchimoku(series, cfg.TenkanPeriod, cfg.KijunPeriod, cfg.SenkouPeriod)

	result, reason, err := crit.Evaluate(series, lines)
	if err != nil {
		if errors.Is(err, criteria.ErrInsufficientData) {
			return &domain.ScanOutcome{Symbol: symbol, Status: domain.StatusSkipped, Reason: err.Error()}
		}
		return &domain.ScanOutcome{Symbol: symbol, Status: domain.StatusFailed, Err: err}
	}
	if result == nil {
		return &domain.ScanOutcome{Symbol: symbol, Status: domain.StatusNotMatched, Reason: reason}
	}

	// The breakout fired; a failing filter demotes to NOT_MATCHED, never
	// to SKIPPED or FAILED.
	if ok, failed := filter.Apply(filters, series, lines, result); !ok {
		return &domain.ScanOutcome{
			Symbol: symbol,
			Status: domain.StatusNotMatched,
			Reason: "filtered out by " + failed,
		}
	}

	r.logger.Printf("MATCH %s: close %.2f vs cloud top %.2f (+%.2f%%)",
		symbol, result.CloseY, result.CloudTopY, result.DistancePct)
	return &domain.ScanOutcome{Symbol: symbol, Status: domain.StatusMatched, Result: result}
}
