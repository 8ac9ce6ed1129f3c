// Package memory provides an in-memory cache.Store, used for tests and
// single-shot CLI runs where persistence across invocations is not needed.
package memory

import (
	"context"
	"sync"
	"time"

	"ichiscan/internal/cache"
	"ichiscan/internal/domain"
)

// Approximate in-memory footprint of one bar (date + five float64 fields).
const barSizeBytes = 64

type entry struct {
	storedAt time.Time
	rangeEnd time.Time
	series   *domain.BarSeries
}

// Store is an in-memory implementation of cache.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry

	// Now is the clock used by the freshness policy; tests override it.
	Now func() time.Time
}

// NewStore creates an empty in-memory cache store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]entry),
		Now:  time.Now,
	}
}

var _ cache.Store = (*Store)(nil)

// Get returns the cached series, or cache.ErrNotFound when absent or stale.
func (s *Store) Get(_ context.Context, symbol string, r domain.DateRange) (*domain.BarSeries, error) {
	s.mu.RLock()
	e, ok := s.data[cache.Key(symbol, r)]
	s.mu.RUnlock()

	if !ok {
		return nil, cache.ErrNotFound
	}
	if !cache.Fresh(e.rangeEnd, e.storedAt, s.Now()) {
		return nil, cache.ErrNotFound
	}
	return copySeries(e.series), nil
}

// Put stores a copy of the series under the requested range's key.
func (s *Store) Put(_ context.Context, symbol string, r domain.DateRange, series *domain.BarSeries) error {
	e := entry{
		storedAt: s.Now(),
		rangeEnd: r.End,
		series:   copySeries(series),
	}

	s.mu.Lock()
	s.data[cache.Key(symbol, r)] = e
	s.mu.Unlock()
	return nil
}

// Clear removes all entries.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	s.data = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

// Size returns the approximate stored size in bytes.
func (s *Store) Size(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for key, e := range s.data {
		total += int64(len(key)) + int64(e.series.Len())*barSizeBytes
	}
	return total, nil
}

func copySeries(series *domain.BarSeries) *domain.BarSeries {
	out := &domain.BarSeries{
		Symbol: series.Symbol,
		Range:  series.Range,
		Bars:   make([]domain.Bar, len(series.Bars)),
	}
	copy(out.Bars, series.Bars)
	return out
}
