package filter

import (
	"testing"
	"time"

	"ichiscan/internal/domain"
)

func risingSeries(n int, startClose, step, volume float64) *domain.BarSeries {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := startClose + float64(i)*step
		bars[i] = domain.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: volume,
		}
	}
	return &domain.BarSeries{Symbol: "TST", Bars: bars}
}

func TestMinPrice(t *testing.T) {
	f := MinPrice(5.0)
	if !f.Pass(nil, nil, &domain.ScanResult{CloseY: 5.0}) {
		t.Fatalf("close at threshold rejected")
	}
	if f.Pass(nil, nil, &domain.ScanResult{CloseY: 4.99}) {
		t.Fatalf("close below threshold accepted")
	}
}

func TestMinAvgDollarVolume(t *testing.T) {
	// 30 sessions at close 100 volume 1000: trailing 20-day average dollar
	// volume is 100,000.
	series := risingSeries(30, 100, 0, 1000)
	candidate := &domain.ScanResult{AvgDollarVol20: domain.Undefined}

	if !MinAvgDollarVolume(100_000).Pass(series, nil, candidate) {
		t.Fatalf("volume at threshold rejected")
	}
	if MinAvgDollarVolume(100_001).Pass(series, nil, candidate) {
		t.Fatalf("volume below threshold accepted")
	}
}

func TestMinAvgDollarVolumeUsesCandidateValue(t *testing.T) {
	// A populated candidate value short-circuits recomputation.
	candidate := &domain.ScanResult{AvgDollarVol20: 250_000}
	if !MinAvgDollarVolume(200_000).Pass(nil, nil, candidate) {
		t.Fatalf("candidate value ignored")
	}
}

func TestRSIBand(t *testing.T) {
	rising := risingSeries(40, 100, 1, 1000) // all gains, RSI saturates at 100

	if !RSIBand(50, 100, 14).Pass(rising, nil, nil) {
		t.Fatalf("saturated rsi rejected by wide band")
	}
	if RSIBand(0, 70, 14).Pass(rising, nil, nil) {
		t.Fatalf("overbought rsi accepted by capped band")
	}

	// Flat closes leave RSI undefined, which fails the band.
	flat := risingSeries(40, 100, 0, 1000)
	if RSIBand(0, 100, 14).Pass(flat, nil, nil) {
		t.Fatalf("undefined rsi accepted")
	}
}

func TestMACDAboveSignal(t *testing.T) {
	rising := risingSeries(60, 100, 1, 1000)
	falling := risingSeries(60, 200, -1, 1000)

	if !MACDAboveSignal().Pass(rising, nil, nil) {
		t.Fatalf("uptrend rejected")
	}
	if MACDAboveSignal().Pass(falling, nil, nil) {
		t.Fatalf("downtrend accepted")
	}
}

func TestApplyReportsFirstFailure(t *testing.T) {
	series := risingSeries(30, 100, 0, 1000)
	candidate := &domain.ScanResult{CloseY: 100, AvgDollarVol20: 100_000}
	filters := []Filter{MinPrice(5), MinAvgDollarVolume(1_000_000)}

	ok, failed := Apply(filters, series, nil, candidate)
	if ok {
		t.Fatalf("conjunction passed with failing volume filter")
	}
	if failed != filters[1].Name() {
		t.Fatalf("failed = %q, want %q", failed, filters[1].Name())
	}

	ok, failed = Apply(filters[:1], series, nil, candidate)
	if !ok || failed != "" {
		t.Fatalf("passing conjunction reported (%v, %q)", ok, failed)
	}
}

func TestFromConfigEnablesOnlyConfigured(t *testing.T) {
	cfg := &domain.ScanConfig{}
	if got := FromConfig(cfg); len(got) != 0 {
		t.Fatalf("empty config built %d filters", len(got))
	}

	cfg = &domain.ScanConfig{
		MinPrice:           5,
		MinAvgDollarVolume: 1_000_000,
		MinRSI:             40,
		MaxRSI:             80,
		MACDPositive:       true,
	}
	if got := FromConfig(cfg); len(got) != 4 {
		t.Fatalf("full config built %d filters, want 4", len(got))
	}
}
