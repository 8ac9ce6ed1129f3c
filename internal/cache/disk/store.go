// Package disk provides a file-backed cache.Store: one JSON document per
// (symbol, range) key carrying a schema-version tag, so format changes are
// detected on read instead of silently deserializing garbage.
package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ichiscan/internal/cache"
	"ichiscan/internal/domain"
)

const fileExt = ".json"

// envelope is the on-disk entry layout.
type envelope struct {
	SchemaVersion int       `json:"schema_version"`
	StoredAt      time.Time `json:"stored_at"`
	Symbol        string    `json:"symbol"`
	RangeStart    string    `json:"range_start"`
	RangeEnd      string    `json:"range_end"`
	Bars          []barRec  `json:"bars"`
}

type barRec struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Store is a disk-backed implementation of cache.Store.
type Store struct {
	dir string

	// Now is the clock used by the freshness policy; tests override it.
	Now func() time.Time
}

// NewStore creates the cache directory if needed and returns the store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{dir: dir, Now: time.Now}, nil
}

var _ cache.Store = (*Store)(nil)

// path maps a cache key to its file. Keys contain only symbol characters
// and ISO dates; path separators are still replaced defensively.
func (s *Store) path(symbol string, r domain.DateRange) string {
	key := cache.Key(symbol, r)
	key = strings.NewReplacer("/", "_", "\\", "_", "|", "_", ":", "_").Replace(key)
	return filepath.Join(s.dir, key+fileExt)
}

// Get returns the cached series, or cache.ErrNotFound when the file is
// absent, stale, or written under a different schema version.
func (s *Store) Get(_ context.Context, symbol string, r domain.DateRange) (*domain.BarSeries, error) {
	data, err := os.ReadFile(s.path(symbol, r))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if env.SchemaVersion != cache.SchemaVersion {
		return nil, cache.ErrNotFound
	}
	if !cache.Fresh(r.End, env.StoredAt, s.Now()) {
		return nil, cache.ErrNotFound
	}

	series := &domain.BarSeries{
		Symbol: env.Symbol,
		Range:  r,
		Bars:   make([]domain.Bar, 0, len(env.Bars)),
	}
	for _, b := range env.Bars {
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

// Put writes the entry atomically: temp file then rename, so same-key
// concurrent writes each land a complete document and either may win.
func (s *Store) Put(_ context.Context, symbol string, r domain.DateRange, series *domain.BarSeries) error {
	env := envelope{
		SchemaVersion: cache.SchemaVersion,
		StoredAt:      s.Now(),
		Symbol:        series.Symbol,
		RangeStart:    r.Start.UTC().Format("2006-01-02"),
		RangeEnd:      r.End.UTC().Format("2006-01-02"),
		Bars:          make([]barRec, 0, len(series.Bars)),
	}
	for _, b := range series.Bars {
		env.Bars = append(env.Bars, barRec{
			Date:   b.Date.UTC().Format("2006-01-02"),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	target := s.path(symbol, r)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Clear removes all cache files in the directory.
func (s *Store) Clear(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("remove cache entry %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Size returns the total size of all cache files in bytes.
func (s *Store) Size(_ context.Context) (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
