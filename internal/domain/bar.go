package domain

import (
	"fmt"
	"time"
)

// Bar is one completed trading session for a symbol.
// Bars are immutable once produced.
type Bar struct {
	Date   time.Time // session date, normalized to UTC midnight
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// DateRange is an inclusive [Start, End] calendar range for a data request.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks that the range is well-formed.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range has zero bound")
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("start %s after end %s", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	}
	return nil
}

// TodaySentinel is accepted in place of an ISO end date.
const TodaySentinel = "today"

// ParseDateRange parses ISO "2006-01-02" bounds; end also accepts the
// literal "today", resolved against now in UTC.
func ParseDateRange(start, end string, now time.Time) (DateRange, error) {
	var r DateRange

	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return r, fmt.Errorf("parse start date %q: %w", start, err)
	}
	r.Start = s

	if end == TodaySentinel {
		y, m, d := now.UTC().Date()
		r.End = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	} else {
		e, err := time.Parse("2006-01-02", end)
		if err != nil {
			return r, fmt.Errorf("parse end date %q: %w", end, err)
		}
		r.End = e
	}
	return r, r.Validate()
}

// BarSeries is an ordered sequence of bars for one symbol over a requested range.
// Invariant: dates are strictly increasing (no duplicates).
type BarSeries struct {
	Symbol string
	Range  DateRange
	Bars   []Bar
}

// Len returns the number of bars in the series.
func (s *BarSeries) Len() int { return len(s.Bars) }

// Last returns the most recent bar. It panics on an empty series;
// callers check Len first.
func (s *BarSeries) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Validate checks the strictly-increasing-dates invariant.
func (s *BarSeries) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Date.After(s.Bars[i-1].Date) {
			return fmt.Errorf("bars out of order at index %d: %s !> %s",
				i, s.Bars[i].Date.Format("2006-01-02"), s.Bars[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Highs returns the per-session high prices.
func (s *BarSeries) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the per-session low prices.
func (s *BarSeries) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Closes returns the per-session closing prices.
func (s *BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}
