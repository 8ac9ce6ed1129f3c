package domain

import "math"

// Undefined marks an indicator value that cannot be computed yet
// (rolling window incomplete or displacement reaches before the series start).
// Undefined values propagate; they are never defaulted to zero.
var Undefined = math.NaN()

// IsDefined reports whether an indicator value is computable.
func IsDefined(v float64) bool { return !math.IsNaN(v) }

// IchimokuLines holds the five indicator lines plus the derived cloud
// boundaries, aligned index-for-index with the bar series they were
// computed from. SenkouA/SenkouB at index i represent the cloud that was
// visible to a trader standing at session i (the conventional forward
// plot offset is realized as a backward lookup).
type IchimokuLines struct {
	Tenkan      []float64
	Kijun       []float64
	SenkouA     []float64
	SenkouB     []float64
	CloudTop    []float64
	CloudBottom []float64
}

// Len returns the number of sessions covered by the lines.
func (l *IchimokuLines) Len() int { return len(l.Tenkan) }
