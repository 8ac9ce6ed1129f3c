package indicator

import (
	"math"
	"testing"

	"ichiscan/internal/domain"
)

func TestRSIWarmupAndSaturation(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	rsi := RSI(closes, 3)

	for i := 0; i < 3; i++ {
		if domain.IsDefined(rsi[i]) {
			t.Fatalf("rsi[%d] = %v, want undefined during warm-up", i, rsi[i])
		}
	}
	// Monotonic gains: zero average loss saturates at 100.
	for i := 3; i < len(rsi); i++ {
		if rsi[i] != 100 {
			t.Fatalf("rsi[%d] = %v, want 100 on all-gain window", i, rsi[i])
		}
	}
}

func TestRSIBalancedWindow(t *testing.T) {
	closes := []float64{10, 11, 10, 11, 10}
	rsi := RSI(closes, 2)

	// Each window holds one +1 and one -1 delta.
	for i := 2; i < len(rsi); i++ {
		if math.Abs(rsi[i]-50) > 1e-9 {
			t.Fatalf("rsi[%d] = %v, want 50", i, rsi[i])
		}
	}
}

func TestRSIFlatWindowUndefined(t *testing.T) {
	rsi := RSI([]float64{5, 5, 5, 5, 5, 5}, 3)
	for i, v := range rsi {
		if domain.IsDefined(v) {
			t.Fatalf("rsi[%d] = %v, want undefined on flat closes", i, v)
		}
	}
}

func TestRSIShortSeries(t *testing.T) {
	rsi := RSI([]float64{1, 2}, 14)
	for i, v := range rsi {
		if domain.IsDefined(v) {
			t.Fatalf("rsi[%d] = %v, want undefined when series shorter than period", i, v)
		}
	}
}
