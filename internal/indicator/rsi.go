package indicator

import (
	"ichiscan/internal/domain"
)

// DefaultRSIPeriod is the conventional 14-session RSI window.
const DefaultRSIPeriod = 14

// RSI computes the relative strength index over closing prices using
// simple-average gains and losses over the trailing window. RSI[i] is
// domain.Undefined while fewer than period deltas are available. A window
// with zero average loss saturates at 100; a flat window is undefined.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = domain.Undefined
	}
	if period <= 0 || n < period+1 {
		return out
	}

	for i := period; i < n; i++ {
		var gain, loss float64
		for j := i - period + 1; j <= i; j++ {
			delta := closes[j] - closes[j-1]
			if delta > 0 {
				gain += delta
			} else {
				loss -= delta
			}
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)

		switch {
		case avgLoss == 0 && avgGain == 0:
			// flat window, relative strength undefined
		case avgLoss == 0:
			out[i] = 100
		default:
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}
