// Package loader resolves per-symbol bar series, consulting the cache
// store first and falling back to the external market data provider.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"ichiscan/internal/cache"
	"ichiscan/internal/domain"
	"ichiscan/internal/marketdata"
)

// ErrDataUnavailable is returned when the provider has no usable data for
// a symbol (unknown ticker, empty response, or all rows malformed).
var ErrDataUnavailable = errors.New("no usable data for symbol")

// Loader is the cache-first data resolution layer. Cache I/O errors
// degrade to a treat-as-cache-miss policy rather than failing the symbol.
type Loader struct {
	store    cache.Store
	provider marketdata.Provider
	logger   *log.Logger
}

// New creates a loader. logger may be nil.
func New(store cache.Store, provider marketdata.Provider, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{store: store, provider: provider, logger: logger}
}

// Load returns the normalized bar series for a symbol over the requested
// range. Identical arguments always yield identical series content; the
// cache entry is keyed by the requested range, not the provider's raw
// range, so the second identical call never hits the provider.
func (l *Loader) Load(ctx context.Context, symbol string, r domain.DateRange) (*domain.BarSeries, error) {
	series, err := l.store.Get(ctx, symbol, r)
	if err == nil {
		return series, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		l.logger.Printf("[WARN] cache read failed for %s, treating as miss: %v", symbol, err)
	}

	rows, err := l.provider.Fetch(ctx, symbol, r)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	series = Normalize(symbol, r, rows)
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, symbol)
	}

	if err := l.store.Put(ctx, symbol, r, series); err != nil {
		l.logger.Printf("[WARN] cache write failed for %s: %v", symbol, err)
	}
	return series, nil
}

// Normalize converts raw provider rows into a canonical series: rows with
// any missing OHLC field are dropped, dates are truncated to UTC days,
// duplicates collapse to the last row seen, and the result is sorted
// ascending by date.
func Normalize(symbol string, r domain.DateRange, rows []marketdata.Row) *domain.BarSeries {
	byDate := make(map[int64]domain.Bar, len(rows))
	for _, row := range rows {
		if row.Open == nil || row.High == nil || row.Low == nil || row.Close == nil {
			continue
		}
		y, m, d := row.Date.UTC().Date()
		date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		byDate[date.Unix()] = domain.Bar{
			Date:   date,
			Open:   *row.Open,
			High:   *row.High,
			Low:    *row.Low,
			Close:  *row.Close,
			Volume: row.Volume,
		}
	}

	series := &domain.BarSeries{
		Symbol: symbol,
		Range:  r,
		Bars:   make([]domain.Bar, 0, len(byDate)),
	}
	for _, bar := range byDate {
		series.Bars = append(series.Bars, bar)
	}
	sort.Slice(series.Bars, func(i, j int) bool {
		return series.Bars[i].Date.Before(series.Bars[j].Date)
	})
	return series
}
