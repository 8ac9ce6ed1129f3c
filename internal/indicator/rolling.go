// Package indicator implements the technical indicator math used by the
// scanner: Ichimoku lines, RSI and MACD. All functions are pure and operate
// on contiguous slices with explicit index arithmetic; values that cannot be
// computed yet are domain.Undefined, never zero.
package indicator

import (
	"math"

	"ichiscan/internal/domain"
)

// windowMidpoint returns (max(high) + min(low)) / 2 over the window of
// length period ending at index i, inclusive. Returns domain.Undefined when
// the window reaches before the series start.
func windowMidpoint(highs, lows []float64, i, period int) float64 {
	if i < 0 || i >= len(highs) || i < period-1 {
		return domain.Undefined
	}
	hi := math.Inf(-1)
	lo := math.Inf(1)
	for j := i - period + 1; j <= i; j++ {
		if highs[j] > hi {
			hi = highs[j]
		}
		if lows[j] < lo {
			lo = lows[j]
		}
	}
	return (hi + lo) / 2
}

// Mean returns the arithmetic mean of values, or domain.Undefined for an
// empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return domain.Undefined
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// AvgDollarVolume returns the mean of close*volume over the trailing
// `sessions` bars of the series (or all bars when fewer are available).
func AvgDollarVolume(series *domain.BarSeries, sessions int) float64 {
	n := series.Len()
	if n == 0 {
		return domain.Undefined
	}
	start := n - sessions
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, b := range series.Bars[start:] {
		sum += b.Close * b.Volume
	}
	return sum / float64(n-start)
}
