package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ichiscan/internal/cache"
	"ichiscan/internal/domain"
)

// barRec is the JSONB layout of one bar inside a cache row.
type barRec struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Store implements cache.Store on the bar_cache table.
type Store struct {
	pool *Pool

	// Now is the clock used by the freshness policy; tests override it.
	Now func() time.Time
}

// NewStore creates a new postgres-backed cache store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool, Now: time.Now}
}

var _ cache.Store = (*Store)(nil)

// Get returns the cached series, or cache.ErrNotFound when the row is
// absent, stale, or written under a different schema version.
func (s *Store) Get(ctx context.Context, symbol string, r domain.DateRange) (*domain.BarSeries, error) {
	query := `
		SELECT schema_version, symbol, stored_at, bars
		FROM bar_cache
		WHERE cache_key = $1
	`

	var (
		schemaVersion int
		storedSymbol  string
		storedAt      time.Time
		barsJSON      []byte
	)
	err := s.pool.QueryRow(ctx, query, cache.Key(symbol, r)).
		Scan(&schemaVersion, &storedSymbol, &storedAt, &barsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}

	if schemaVersion != cache.SchemaVersion {
		return nil, cache.ErrNotFound
	}
	if !cache.Fresh(r.End, storedAt, s.Now()) {
		return nil, cache.ErrNotFound
	}

	var recs []barRec
	if err := json.Unmarshal(barsJSON, &recs); err != nil {
		return nil, fmt.Errorf("decode cache bars: %w", err)
	}

	series := &domain.BarSeries{
		Symbol: storedSymbol,
		Range:  r,
		Bars:   make([]domain.Bar, 0, len(recs)),
	}
	for _, b := range recs {
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			return nil, fmt.Errorf("decode bar date %q: %w", b.Date, err)
		}
		series.Bars = append(series.Bars, domain.Bar{
			Date:   date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return series, nil
}

// Put upserts the entry. Same-key concurrent writes both carry canonical
// content, so last-write-wins is acceptable.
func (s *Store) Put(ctx context.Context, symbol string, r domain.DateRange, series *domain.BarSeries) error {
	recs := make([]barRec, 0, len(series.Bars))
	for _, b := range series.Bars {
		recs = append(recs, barRec{
			Date:   b.Date.UTC().Format("2006-01-02"),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	barsJSON, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode cache bars: %w", err)
	}

	query := `
		INSERT INTO bar_cache (
			cache_key, schema_version, symbol, range_start, range_end, stored_at, bars
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cache_key) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			symbol         = EXCLUDED.symbol,
			stored_at      = EXCLUDED.stored_at,
			bars           = EXCLUDED.bars
	`

	_, err = s.pool.Exec(ctx, query,
		cache.Key(symbol, r),
		cache.SchemaVersion,
		series.Symbol,
		r.Start.UTC(),
		r.End.UTC(),
		s.Now().UTC(),
		barsJSON,
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE bar_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Size returns the on-disk size of the cache table in bytes.
func (s *Store) Size(ctx context.Context) (int64, error) {
	var size int64
	err := s.pool.QueryRow(ctx, `SELECT pg_total_relation_size('bar_cache')`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("query cache size: %w", err)
	}
	return size, nil
}
