// Package stub provides a canned marketdata.Provider for tests and
// offline runs.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ichiscan/internal/domain"
	"ichiscan/internal/marketdata"
)

// Provider serves pre-registered rows per symbol and counts fetch calls,
// so tests can assert cache behavior without a network.
type Provider struct {
	mu    sync.Mutex
	rows  map[string][]marketdata.Row
	errs  map[string]error
	calls map[string]int
}

// NewProvider creates an empty stub provider.
func NewProvider() *Provider {
	return &Provider{
		rows:  make(map[string][]marketdata.Row),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

var _ marketdata.Provider = (*Provider)(nil)

// SetRows registers the rows returned for a symbol.
func (p *Provider) SetRows(symbol string, rows []marketdata.Row) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows[symbol] = rows
}

// SetErr makes every fetch for the symbol fail with err.
func (p *Provider) SetErr(symbol string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[symbol] = err
}

// Calls returns how many times the symbol was fetched.
func (p *Provider) Calls(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[symbol]
}

// Fetch returns the registered rows restricted to the requested range.
func (p *Provider) Fetch(_ context.Context, symbol string, r domain.DateRange) ([]marketdata.Row, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[symbol]++
	if err := p.errs[symbol]; err != nil {
		return nil, err
	}
	var out []marketdata.Row
	for _, row := range p.rows[symbol] {
		if row.Date.Before(r.Start) || row.Date.After(r.End.Add(24*time.Hour)) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// SyntheticRows builds sessions consecutive daily rows starting at start,
// with closes taken from the closes slice (repeating the last value when
// sessions exceeds its length). Useful for deterministic scan scenarios.
func SyntheticRows(start time.Time, sessions int, closes []float64) []marketdata.Row {
	rows := make([]marketdata.Row, 0, sessions)
	for i := 0; i < sessions; i++ {
		c := closes[len(closes)-1]
		if i < len(closes) {
			c = closes[i]
		}
		o, h, l := c, c+1, c-1
		vol := 1000.0 + float64(i)
		rows = append(rows, marketdata.Row{
			Date:   start.AddDate(0, 0, i),
			Open:   ptr(o),
			High:   ptr(h),
			Low:    ptr(l),
			Close:  ptr(c),
			Volume: vol,
		})
	}
	return rows
}

func ptr(v float64) *float64 { return &v }

// FlatThenBreakout builds the canonical test universe series: belowSessions
// rows closing at belowClose followed by aboveSessions rows closing at
// aboveClose, all with tight ranges so the cloud stays flat.
func FlatThenBreakout(start time.Time, belowSessions, aboveSessions int, belowClose, aboveClose float64) []marketdata.Row {
	closes := make([]float64, 0, belowSessions+aboveSessions)
	for i := 0; i < belowSessions; i++ {
		closes = append(closes, belowClose)
	}
	for i := 0; i < aboveSessions; i++ {
		closes = append(closes, aboveClose)
	}
	if len(closes) == 0 {
		return nil
	}
	return SyntheticRows(start, len(closes), closes)
}

// String renders call counts for debugging.
func (p *Provider) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("stub.Provider{symbols=%d}", len(p.rows))
}
