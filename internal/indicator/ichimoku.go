package indicator

import (
	"ichiscan/internal/domain"
)

// ComputeIchimoku computes the Ichimoku lines for a bar series.
//
// The displacement equals the Kijun period. The conventional forward plot
// offset of the Senkou spans is realized as a backward lookup: SenkouA[i]
// and SenkouB[i] are the cloud boundary visible to a trader standing at
// session i, derived only from bars at indices <= i. Any window or
// displacement reaching before the series start yields domain.Undefined.
func ComputeIchimoku(bars *domain.BarSeries, tenkanPeriod, kijunPeriod, senkouPeriod int) *domain.IchimokuLines {
	n := bars.Len()
	highs := bars.Highs()
	lows := bars.Lows()
	displacement := kijunPeriod

	lines := &domain.IchimokuLines{
		Tenkan:      make([]float64, n),
		Kijun:       make([]float64, n),
		SenkouA:     make([]float64, n),
		SenkouB:     make([]float64, n),
		CloudTop:    make([]float64, n),
		CloudBottom: make([]float64, n),
	}

	for i := 0; i < n; i++ {
		lines.Tenkan[i] = windowMidpoint(highs, lows, i, tenkanPeriod)
		lines.Kijun[i] = windowMidpoint(highs, lows, i, kijunPeriod)
	}

	for i := 0; i < n; i++ {
		back := i - displacement

		lines.SenkouA[i] = domain.Undefined
		if back >= 0 && domain.IsDefined(lines.Tenkan[back]) && domain.IsDefined(lines.Kijun[back]) {
			lines.SenkouA[i] = (lines.Tenkan[back] + lines.Kijun[back]) / 2
		}

		lines.SenkouB[i] = windowMidpoint(highs, lows, back, senkouPeriod)

		a, b := lines.SenkouA[i], lines.SenkouB[i]
		if domain.IsDefined(a) && domain.IsDefined(b) {
			if a >= b {
				lines.CloudTop[i], lines.CloudBottom[i] = a, b
			} else {
				lines.CloudTop[i], lines.CloudBottom[i] = b, a
			}
		} else {
			lines.CloudTop[i] = domain.Undefined
			lines.CloudBottom[i] = domain.Undefined
		}
	}

	return lines
}
