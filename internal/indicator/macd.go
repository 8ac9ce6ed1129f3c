package indicator

// Conventional MACD periods (12/26/9).
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDLines holds the MACD line, its signal line and the histogram,
// aligned index-for-index with the closes they were computed from.
type MACDLines struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes moving average convergence/divergence over closing prices.
// EMAs are seeded with the first value, so all outputs are defined from
// index 0; early values carry the usual warm-up bias and callers gate on
// series length instead.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) *MACDLines {
	n := len(closes)
	lines := &MACDLines{
		MACD:      make([]float64, n),
		Signal:    make([]float64, n),
		Histogram: make([]float64, n),
	}
	if n == 0 {
		return lines
	}

	fast := ema(closes, fastPeriod)
	slow := ema(closes, slowPeriod)
	for i := 0; i < n; i++ {
		lines.MACD[i] = fast[i] - slow[i]
	}
	lines.Signal = ema(lines.MACD, signalPeriod)
	for i := 0; i < n; i++ {
		lines.Histogram[i] = lines.MACD[i] - lines.Signal[i]
	}
	return lines
}

// ema computes an exponential moving average with alpha = 2/(period+1),
// seeded with the first value.
func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
