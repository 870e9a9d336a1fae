package candle

import (
	"math"

	"daytrader/internal/model"
)

// TrueRange returns the true range of the bar back bars ago. The previous
// close falls back to the bar's own open when no earlier bar exists.
// back is clamped to [1, len(bars)]; an empty series yields 0.
func TrueRange(bars []model.Candle, back int) float64 {
	n := len(bars)
	if n == 0 {
		return 0
	}
	back = min(max(back, 1), n)
	i := n - back
	prevClose := bars[i].Open
	if i > 0 {
		prevClose = bars[i-1].Close
	}
	return RangeAgainst(bars[i].High, bars[i].Low, prevClose)
}

// RangeAgainst is max(high-low, |high-prevClose|, |prevClose-low|).
func RangeAgainst(high, low, prevClose float64) float64 {
	return max(high-low, math.Abs(high-prevClose), math.Abs(prevClose-low))
}
