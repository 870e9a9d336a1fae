package candle

import "daytrader/internal/model"

// HeikinAshi returns the smoothed version of c. prev is the previous
// smoothed bar, or nil for the first bar of a series.
func HeikinAshi(prev *model.Candle, c model.Candle) model.Candle {
	ha := c
	ha.Close = (c.Open + c.High + c.Low + c.Close) / 4
	if prev != nil {
		ha.Open = (prev.Open + prev.Close) / 2
	} else {
		ha.Open = (c.Open + c.Close) / 2
	}
	ha.High = max(c.High, c.Low, ha.Open, ha.Close)
	ha.Low = min(c.High, c.Low, ha.Open, ha.Close)
	return ha
}

// HeikinAshiSeries replays HeikinAshi over raw bars.
func HeikinAshiSeries(raw []model.Candle) []model.Candle {
	out := make([]model.Candle, 0, len(raw))
	for i, c := range raw {
		var prev *model.Candle
		if i > 0 {
			prev = &out[i-1]
		}
		out = append(out, HeikinAshi(prev, c))
	}
	return out
}
