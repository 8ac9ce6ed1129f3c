package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when a scan configuration cannot produce
// meaningful results. It aborts the whole scan before any symbol is processed.
var ErrInvalidConfig = errors.New("invalid scan config")

// Default Ichimoku parameters (conventional 9/26/52 daily settings).
const (
	DefaultTenkanPeriod = 9
	DefaultKijunPeriod  = 26
	DefaultSenkouPeriod = 52
	DefaultLookback     = 10
	DefaultWorkers      = 8
)

// ScanConfig is the full parameter set for one scan. It is immutable for
// the duration of the scan and owned by the runner invocation that uses it.
type ScanConfig struct {
	Symbols []string
	Range   DateRange

	TenkanPeriod int
	KijunPeriod  int
	SenkouPeriod int

	Lookback    int  // prior sessions that must not have closed above the cloud
	StrictCross bool // require the session before the breakout at-or-below the cloud

	MinPrice           float64
	MinAvgDollarVolume float64
	MinRSI             float64 // RSI band, disabled when MaxRSI <= 0
	MaxRSI             float64
	MACDPositive       bool // require MACD line above signal at the breakout session

	Workers int
}

// Normalize deduplicates and uppercases the symbol universe and fills in
// defaults for unset parameters.
func (c *ScanConfig) Normalize() {
	seen := make(map[string]struct{}, len(c.Symbols))
	out := c.Symbols[:0]
	for _, s := range c.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	c.Symbols = out

	if c.TenkanPeriod == 0 {
		c.TenkanPeriod = DefaultTenkanPeriod
	}
	if c.KijunPeriod == 0 {
		c.KijunPeriod = DefaultKijunPeriod
	}
	if c.SenkouPeriod == 0 {
		c.SenkouPeriod = DefaultSenkouPeriod
	}
	if c.Lookback == 0 {
		c.Lookback = DefaultLookback
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
}

// Validate checks the configuration. All failures wrap ErrInvalidConfig.
func (c *ScanConfig) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: empty symbol universe", ErrInvalidConfig)
	}
	if err := c.Range.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.TenkanPeriod <= 0 || c.KijunPeriod <= 0 || c.SenkouPeriod <= 0 {
		return fmt.Errorf("%w: non-positive ichimoku period (%d/%d/%d)",
			ErrInvalidConfig, c.TenkanPeriod, c.KijunPeriod, c.SenkouPeriod)
	}
	if c.Lookback < 0 {
		return fmt.Errorf("%w: negative lookback %d", ErrInvalidConfig, c.Lookback)
	}
	if c.MaxRSI > 0 && c.MinRSI > c.MaxRSI {
		return fmt.Errorf("%w: rsi band min %.1f above max %.1f", ErrInvalidConfig, c.MinRSI, c.MaxRSI)
	}
	return nil
}

// MinBars is the shortest series on which the configured indicators are
// computable at the latest session: the Senkou window plus the Kijun-sized
// displacement.
func (c *ScanConfig) MinBars() int {
	return c.SenkouPeriod + c.KijunPeriod
}

// OutcomeStatus classifies the terminal state of one symbol's pipeline.
type OutcomeStatus string

const (
	StatusMatched    OutcomeStatus = "MATCHED"
	StatusNotMatched OutcomeStatus = "NOT_MATCHED"
	StatusSkipped    OutcomeStatus = "SKIPPED"
	StatusFailed     OutcomeStatus = "FAILED"
	StatusCancelled  OutcomeStatus = "CANCELLED"
)

// ScanResult describes one matching symbol. Produced once per match and
// never mutated afterwards. Field names are the export contract.
type ScanResult struct {
	Symbol          string    `json:"symbol"`
	DateYesterday   time.Time `json:"date_yesterday"`
	CloseY          float64   `json:"close_y"`
	CloudTopY       float64   `json:"cloud_top_y"`
	CloudBottomY    float64   `json:"cloud_bottom_y"`
	DistancePct     float64   `json:"distance_pct"`
	LookbackChecked int       `json:"lookback_checked"`
	AvgDollarVol20  float64   `json:"avg_dollar_vol_20"`
	TenkanY         float64   `json:"tenkan_y"`
	KijunY          float64   `json:"kijun_y"`
}

// ScanOutcome is produced exactly once per requested symbol. Callers never
// infer failure from a missing entry.
type ScanOutcome struct {
	Symbol string
	Status OutcomeStatus
	Result *ScanResult // set iff Status == StatusMatched
	Reason string      // set for StatusSkipped / StatusNotMatched
	Err    error       // set for StatusFailed
}

// ScanSummary aggregates outcome counts across a full scan.
type ScanSummary struct {
	Scanned    int `json:"scanned"`
	Matched    int `json:"matched"`
	NotMatched int `json:"not_matched"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// Summarize tallies outcomes into a summary.
func Summarize(outcomes map[string]*ScanOutcome) ScanSummary {
	var s ScanSummary
	s.Scanned = len(outcomes)
	for _, o := range outcomes {
		switch o.Status {
		case StatusMatched:
			s.Matched++
		case StatusNotMatched:
			s.NotMatched++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// MatchedResults extracts the matched results, sorted by symbol.
func MatchedResults(outcomes map[string]*ScanOutcome) []*ScanResult {
	var results []*ScanResult
	for _, o := range outcomes {
		if o.Status == StatusMatched && o.Result != nil {
			results = append(results, o.Result)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Symbol < results[j].Symbol
	})
	return results
}
