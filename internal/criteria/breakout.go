// Package criteria implements first-close-above-cloud breakout detection.
package criteria

import (
	"errors"

	"ichiscan/internal/domain"
	"ichiscan/internal/indicator"
)

// ErrInsufficientData is returned when the cloud or close at the evaluated
// session is not computable. The symbol is skipped, not failed.
var ErrInsufficientData = errors.New("insufficient data at evaluated session")

// Reasons attached to non-matching outcomes.
const (
	ReasonBelowCloud    = "close not above cloud"
	ReasonNotFirst      = "closed above cloud within lookback"
	ReasonNoStrictCross = "no strict cross: prior session already above cloud"
)

// dollarVolumeSessions is the trailing window for the supporting
// average-dollar-volume metric on a match.
const dollarVolumeSessions = 20

// Breakout evaluates whether the most recently completed session is the
// first close above the Ichimoku cloud within the lookback window.
type Breakout struct {
	Lookback    int
	StrictCross bool
}

// Evaluate inspects the last session of the series (index Y) against the
// aligned Ichimoku lines.
//
// Returns:
//   - a populated candidate result when the breakout fired at Y;
//   - (nil, reason, nil) when it did not;
//   - (nil, "", ErrInsufficientData) when Close[Y] or CloudTop[Y] is
//     undefined and the session cannot be evaluated.
//
// Sessions before the series start count as satisfying the "not previously
// above" condition: with no prior data there is nothing to contradict
// "first time". Undefined cloud values inside the lookback window satisfy
// it for the same reason.
func (b *Breakout) Evaluate(series *domain.BarSeries, lines *domain.IchimokuLines) (*domain.ScanResult, string, error) {
	y := series.Len() - 1
	if y < 0 || lines.Len() != series.Len() {
		return nil, "", ErrInsufficientData
	}

	closeY := series.Bars[y].Close
	cloudTopY := lines.CloudTop[y]
	if !domain.IsDefined(cloudTopY) || !domain.IsDefined(closeY) {
		return nil, "", ErrInsufficientData
	}

	// Condition A: currently above the cloud.
	if !(closeY > cloudTopY) {
		return nil, ReasonBelowCloud, nil
	}

	// Condition B: none of the prior lookback sessions closed above.
	for j := y - b.Lookback; j < y; j++ {
		if j < 0 {
			continue
		}
		top := lines.CloudTop[j]
		if !domain.IsDefined(top) {
			continue
		}
		if series.Bars[j].Close > top {
			return nil, ReasonNotFirst, nil
		}
	}

	// Condition C: the session immediately before the breakout must have
	// been at-or-below the cloud.
	if b.StrictCross {
		prev := y - 1
		if prev < 0 {
			return nil, ReasonNoStrictCross, nil
		}
		prevTop := lines.CloudTop[prev]
		prevClose := series.Bars[prev].Close
		if !domain.IsDefined(prevTop) || !domain.IsDefined(prevClose) {
			return nil, ReasonNoStrictCross, nil
		}
		if prevClose > prevTop {
			return nil, ReasonNoStrictCross, nil
		}
	}

	return &domain.ScanResult{
		Symbol:          series.Symbol,
		DateYesterday:   series.Bars[y].Date,
		CloseY:          closeY,
		CloudTopY:       cloudTopY,
		CloudBottomY:    lines.CloudBottom[y],
		DistancePct:     (closeY - cloudTopY) / cloudTopY * 100,
		LookbackChecked: b.Lookback,
		AvgDollarVol20:  indicator.AvgDollarVolume(series, dollarVolumeSessions),
		TenkanY:         lines.Tenkan[y],
		KijunY:          lines.Kijun[y],
	}, "", nil
}
