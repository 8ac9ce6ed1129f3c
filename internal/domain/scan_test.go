package domain

import (
	"errors"
	"testing"
	"time"
)

func validRange() DateRange {
	return DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestScanConfigNormalize(t *testing.T) {
	cfg := &ScanConfig{
		Symbols: []string{" aapl", "MSFT", "aapl ", "", "msft"},
		Range:   validRange(),
	}
	cfg.Normalize()

	want := []string{"AAPL", "MSFT"}
	if len(cfg.Symbols) != len(want) {
		t.Fatalf("symbols = %v, want %v", cfg.Symbols, want)
	}
	for i := range want {
		if cfg.Symbols[i] != want[i] {
			t.Fatalf("symbols = %v, want %v", cfg.Symbols, want)
		}
	}

	if cfg.TenkanPeriod != DefaultTenkanPeriod || cfg.KijunPeriod != DefaultKijunPeriod ||
		cfg.SenkouPeriod != DefaultSenkouPeriod {
		t.Fatalf("periods = %d/%d/%d, want defaults", cfg.TenkanPeriod, cfg.KijunPeriod, cfg.SenkouPeriod)
	}
	if cfg.Lookback != DefaultLookback || cfg.Workers != DefaultWorkers {
		t.Fatalf("lookback/workers = %d/%d, want defaults", cfg.Lookback, cfg.Workers)
	}
}

func TestScanConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*ScanConfig)
	}{
		{"empty universe", func(c *ScanConfig) { c.Symbols = nil }},
		{"inverted range", func(c *ScanConfig) { c.Range.Start, c.Range.End = c.Range.End, c.Range.Start }},
		{"zero period", func(c *ScanConfig) { c.KijunPeriod = -1 }},
		{"negative lookback", func(c *ScanConfig) { c.Lookback = -1 }},
		{"rsi band inverted", func(c *ScanConfig) { c.MinRSI, c.MaxRSI = 80, 40 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &ScanConfig{Symbols: []string{"AAPL"}, Range: validRange()}
			cfg.Normalize()
			tc.mut(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}

	cfg := &ScanConfig{Symbols: []string{"AAPL"}, Range: validRange()}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestScanConfigMinBars(t *testing.T) {
	cfg := &ScanConfig{SenkouPeriod: 52, KijunPeriod: 26}
	if got := cfg.MinBars(); got != 78 {
		t.Fatalf("min bars = %d, want 78", got)
	}
}

func TestParseDateRange(t *testing.T) {
	now := time.Date(2025, 3, 11, 18, 30, 0, 0, time.UTC)

	r, err := ParseDateRange("2024-01-02", "2024-06-30", now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !r.Start.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", r.Start)
	}

	r, err = ParseDateRange("2024-01-02", TodaySentinel, now)
	if err != nil {
		t.Fatalf("parse with today: %v", err)
	}
	if !r.End.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %v, want today's UTC midnight", r.End)
	}

	if _, err := ParseDateRange("02/01/2024", "today", now); err == nil {
		t.Fatal("accepted non-ISO start date")
	}
	if _, err := ParseDateRange("2024-06-30", "2024-01-02", now); err == nil {
		t.Fatal("accepted inverted range")
	}
}

func TestSummarizeAndMatchedResults(t *testing.T) {
	outcomes := map[string]*ScanOutcome{
		"B": {Symbol: "B", Status: StatusMatched, Result: &ScanResult{Symbol: "B"}},
		"A": {Symbol: "A", Status: StatusMatched, Result: &ScanResult{Symbol: "A"}},
		"C": {Symbol: "C", Status: StatusNotMatched},
		"D": {Symbol: "D", Status: StatusSkipped},
		"E": {Symbol: "E", Status: StatusFailed, Err: errors.New("boom")},
		"F": {Symbol: "F", Status: StatusCancelled},
	}

	s := Summarize(outcomes)
	if s.Scanned != 6 || s.Matched != 2 || s.NotMatched != 1 || s.Skipped != 1 || s.Failed != 1 || s.Cancelled != 1 {
		t.Fatalf("summary = %+v", s)
	}

	results := MatchedResults(outcomes)
	if len(results) != 2 || results[0].Symbol != "A" || results[1].Symbol != "B" {
		t.Fatalf("matched results = %v, want [A B]", results)
	}
}
