// Package filter provides the gating predicates applied to breakout
// candidates. Each filter is pure, independent of the others and of
// ordering; the runner applies the full conjunction. A failing filter turns
// the outcome into NOT_MATCHED: the breakout still fired, it was just
// filtered out.
package filter

import (
	"fmt"

	"ichiscan/internal/domain"
	"ichiscan/internal/indicator"
)

// Filter is one gating predicate over a symbol's series, its indicator
// lines and the breakout candidate.
type Filter interface {
	Name() string
	Pass(series *domain.BarSeries, lines *domain.IchimokuLines, candidate *domain.ScanResult) bool
}

// Apply runs the conjunction of filters. Returns the name of the first
// failing filter, or ok when all pass.
func Apply(filters []Filter, series *domain.BarSeries, lines *domain.IchimokuLines, candidate *domain.ScanResult) (ok bool, failed string) {
	for _, f := range filters {
		if !f.Pass(series, lines, candidate) {
			return false, f.Name()
		}
	}
	return true, ""
}

// FromConfig builds the enabled filter set for a scan configuration.
func FromConfig(cfg *domain.ScanConfig) []Filter {
	var filters []Filter
	if cfg.MinPrice > 0 {
		filters = append(filters, MinPrice(cfg.MinPrice))
	}
	if cfg.MinAvgDollarVolume > 0 {
		filters = append(filters, MinAvgDollarVolume(cfg.MinAvgDollarVolume))
	}
	if cfg.MaxRSI > 0 {
		filters = append(filters, RSIBand(cfg.MinRSI, cfg.MaxRSI, indicator.DefaultRSIPeriod))
	}
	if cfg.MACDPositive {
		filters = append(filters, MACDAboveSignal())
	}
	return filters
}

type minPrice struct {
	threshold float64
}

// MinPrice requires the breakout session close at or above the threshold.
func MinPrice(threshold float64) Filter { return &minPrice{threshold: threshold} }

func (f *minPrice) Name() string { return fmt.Sprintf("min_price(%.2f)", f.threshold) }

func (f *minPrice) Pass(_ *domain.BarSeries, _ *domain.IchimokuLines, candidate *domain.ScanResult) bool {
	return candidate.CloseY >= f.threshold
}

type minAvgDollarVolume struct {
	threshold float64
}

// MinAvgDollarVolume requires the trailing 20-session average dollar volume
// at or above the threshold.
func MinAvgDollarVolume(threshold float64) Filter {
	return &minAvgDollarVolume{threshold: threshold}
}

func (f *minAvgDollarVolume) Name() string {
	return fmt.Sprintf("min_avg_dollar_volume(%.0f)", f.threshold)
}

func (f *minAvgDollarVolume) Pass(series *domain.BarSeries, _ *domain.IchimokuLines, candidate *domain.ScanResult) bool {
	v := candidate.AvgDollarVol20
	if !domain.IsDefined(v) {
		v = indicator.AvgDollarVolume(series, 20)
	}
	return domain.IsDefined(v) && v >= f.threshold
}

type rsiBand struct {
	min, max float64
	period   int
}

// RSIBand requires RSI at the breakout session inside [min, max].
// An undefined RSI fails the band.
func RSIBand(min, max float64, period int) Filter {
	return &rsiBand{min: min, max: max, period: period}
}

func (f *rsiBand) Name() string { return fmt.Sprintf("rsi_band(%.0f-%.0f)", f.min, f.max) }

func (f *rsiBand) Pass(series *domain.BarSeries, _ *domain.IchimokuLines, _ *domain.ScanResult) bool {
	rsi := indicator.RSI(series.Closes(), f.period)
	y := len(rsi) - 1
	if y < 0 || !domain.IsDefined(rsi[y]) {
		return false
	}
	return rsi[y] >= f.min && rsi[y] <= f.max
}

type macdAboveSignal struct {
	fast, slow, signal int
}

// MACDAboveSignal requires the MACD line above its signal line (positive
// histogram) at the breakout session, using the 12/26/9 convention.
func MACDAboveSignal() Filter {
	return &macdAboveSignal{
		fast:   indicator.DefaultMACDFast,
		slow:   indicator.DefaultMACDSlow,
		signal: indicator.DefaultMACDSignal,
	}
}

func (f *macdAboveSignal) Name() string { return "macd_above_signal" }

func (f *macdAboveSignal) Pass(series *domain.BarSeries, _ *domain.IchimokuLines, _ *domain.ScanResult) bool {
	lines := indicator.MACD(series.Closes(), f.fast, f.slow, f.signal)
	y := len(lines.Histogram) - 1
	return y >= 0 && lines.Histogram[y] > 0
}
