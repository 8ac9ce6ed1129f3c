package clickhouse

import (
	"context"
	"fmt"
	"time"

	"ichiscan/internal/cache"
	"ichiscan/internal/domain"
)

// Store implements cache.Store on the bar_cache table, one row per bar.
// Rewrites of a key insert a full set of rows under a newer stored_at;
// reads only consider the newest write, so older generations are inert
// until the ReplacingMergeTree merges them away.
type Store struct {
	conn *Conn

	// Now is the clock used by the freshness policy; tests override it.
	Now func() time.Time
}

// NewStore creates a new clickhouse-backed cache store.
func NewStore(conn *Conn) *Store {
	return &Store{conn: conn, Now: time.Now}
}

var _ cache.Store = (*Store)(nil)

// Get returns the cached series, or cache.ErrNotFound when the key is
// absent, stale, or written under a different schema version.
func (s *Store) Get(ctx context.Context, symbol string, r domain.DateRange) (*domain.BarSeries, error) {
	key := cache.Key(symbol, r)

	query := `
		SELECT symbol, schema_version, stored_at, bar_date, open, high, low, close, volume
		FROM bar_cache
		WHERE cache_key = ?
		  AND stored_at = (SELECT max(stored_at) FROM bar_cache WHERE cache_key = ?)
		ORDER BY bar_date ASC
	`

	rows, err := s.conn.Query(ctx, query, key, key)
	if err != nil {
		return nil, fmt.Errorf("query cache entry: %w", err)
	}
	defer rows.Close()

	series := &domain.BarSeries{Range: r}
	var storedAt time.Time
	var schemaVersion uint16

	for rows.Next() {
		var (
			sym           string
			barDate       time.Time
			o, h, l, c, v float64
		)
		if err := rows.Scan(&sym, &schemaVersion, &storedAt, &barDate, &o, &h, &l, &c, &v); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		series.Symbol = sym
		series.Bars = append(series.Bars, domain.Bar{
			Date:   barDate.UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: v,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache rows: %w", err)
	}

	if len(series.Bars) == 0 {
		return nil, cache.ErrNotFound
	}
	if int(schemaVersion) != cache.SchemaVersion {
		return nil, cache.ErrNotFound
	}
	if !cache.Fresh(r.End, storedAt, s.Now()) {
		return nil, cache.ErrNotFound
	}
	return series, nil
}

// Put inserts the series as one batch of rows under a fresh stored_at.
func (s *Store) Put(ctx context.Context, symbol string, r domain.DateRange, series *domain.BarSeries) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bar_cache (
			cache_key, schema_version, symbol, range_start, range_end, stored_at,
			bar_date, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	key := cache.Key(symbol, r)
	storedAt := s.Now().UTC()
	for _, b := range series.Bars {
		err = batch.Append(
			key, uint16(cache.SchemaVersion), series.Symbol,
			r.Start.UTC(), r.End.UTC(), storedAt,
			b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.conn.Exec(ctx, `TRUNCATE TABLE bar_cache`); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Size returns the compressed on-disk size of the cache table in bytes.
func (s *Store) Size(ctx context.Context) (int64, error) {
	query := `
		SELECT coalesce(sum(bytes_on_disk), 0)
		FROM system.parts
		WHERE table = 'bar_cache' AND active
	`

	var size uint64
	if err := s.conn.QueryRow(ctx, query).Scan(&size); err != nil {
		return 0, fmt.Errorf("query cache size: %w", err)
	}
	return int64(size), nil
}
