package indicator

import (
	"math"
	"testing"
)

func TestMACDTrendSign(t *testing.T) {
	rising := make([]float64, 60)
	falling := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 160 - float64(i)
	}

	up := MACD(rising, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	if last := up.Histogram[len(up.Histogram)-1]; last <= 0 {
		t.Fatalf("histogram on steady uptrend = %v, want > 0", last)
	}
	down := MACD(falling, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	if last := down.Histogram[len(down.Histogram)-1]; last >= 0 {
		t.Fatalf("histogram on steady downtrend = %v, want < 0", last)
	}
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 50
	}
	lines := MACD(flat, 12, 26, 9)
	for i := range flat {
		if math.Abs(lines.MACD[i]) > 1e-9 || math.Abs(lines.Histogram[i]) > 1e-9 {
			t.Fatalf("macd/histogram at %d = %v/%v, want 0 on flat closes",
				i, lines.MACD[i], lines.Histogram[i])
		}
	}
}

func TestMACDEmptyInput(t *testing.T) {
	lines := MACD(nil, 12, 26, 9)
	if len(lines.MACD) != 0 || len(lines.Signal) != 0 || len(lines.Histogram) != 0 {
		t.Fatalf("empty input produced non-empty lines")
	}
}

func TestEMAConverges(t *testing.T) {
	values := make([]float64, 200)
	for i := range values {
		values[i] = 42
	}
	values[0] = 0
	out := ema(values, 10)
	if math.Abs(out[len(out)-1]-42) > 1e-6 {
		t.Fatalf("ema tail = %v, want convergence to 42", out[len(out)-1])
	}
}
