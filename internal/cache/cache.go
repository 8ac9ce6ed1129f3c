// Package cache defines the bar-series cache contract shared by the
// memory, disk, postgres and clickhouse backends.
//
// Keys are derived deterministically from symbol and requested date range,
// never from fetch time, so identical requests hit the cache regardless of
// when they run. Content under a key is canonical historical data: same-key
// concurrent writes are benign and either write may win.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ichiscan/internal/domain"
)

// ErrNotFound is returned when no fresh entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// SchemaVersion tags every persisted entry. A version mismatch on read is
// treated as absent so format changes fail loudly at the fetch layer
// instead of silently deserializing garbage.
const SchemaVersion = 1

// Store persists and retrieves per-symbol bar series keyed by symbol and
// requested date range. Implementations tolerate concurrent reads and
// concurrent writes to disjoint keys without external locking.
type Store interface {
	// Get returns the cached series for the request, or ErrNotFound when
	// the entry is absent, stale, or written under a different schema.
	Get(ctx context.Context, symbol string, r domain.DateRange) (*domain.BarSeries, error)

	// Put stores the series under the requested range's key.
	Put(ctx context.Context, symbol string, r domain.DateRange, series *domain.BarSeries) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Size returns the approximate stored size in bytes.
	Size(ctx context.Context) (int64, error)
}

// Key derives the deterministic cache key for a request.
func Key(symbol string, r domain.DateRange) string {
	return fmt.Sprintf("%s|%s|%s",
		strings.ToUpper(symbol),
		r.Start.UTC().Format("2006-01-02"),
		r.End.UTC().Format("2006-01-02"))
}

// Fresh reports whether an entry written at storedAt may still be served
// for a request ending at rangeEnd, evaluated at now.
//
// Entries whose range ends strictly before the day they were written hold
// only completed sessions and are permanently valid. Entries whose range
// extends to the write day may contain an intraday bar, so they expire as
// soon as the calendar day advances.
func Fresh(rangeEnd, storedAt, now time.Time) bool {
	storedDay := day(storedAt)
	if day(rangeEnd).Before(storedDay) {
		return true
	}
	return !day(now).After(storedDay)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
