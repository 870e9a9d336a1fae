package indicator

import (
	"daytrader/internal/candle"
	"daytrader/internal/model"
)

// ATR is the average true range over a window of closed bars, maintained
// incrementally with a forming estimate on every tick.
//
// With r = ticks/barSize, N the number of bars closed before the forming
// bar and C the number of closed bars including one closing on this tick,
// each tick computes
//
//	C >  window:  atr = formed + r*(tr - dropped)/window
//	otherwise:    atr = (formed*N + r*tr) / (N + r)
//
// where formed is the last formed ATR and dropped is the true range of the
// bar leaving the window. On a non-closing tick C == N, so the bar after
// the window-th close still uses the warm-up weighting. At r == 1 this equals ATRAt over the closed
// history and the value is committed to the formed track.
type ATR struct {
	key    Key
	series Series
}

// NewATR creates an ATR and replays any bars already in h.
func NewATR(key Key, h *candle.History) *ATR {
	key.Kind = KindATR
	a := &ATR{key: key}
	if h != nil {
		bars := h.Raw()
		for i := range bars {
			v := ATRAt(bars[:i+1], key.Window, 0)
			a.series.seed(bars[i].TS, v, v-a.series.FormedValues.Last())
		}
	}
	return a
}

func (a *ATR) Key() Key { return a.key }

// Series exposes the four tracks.
func (a *ATR) Series() *Series { return &a.series }

// FormingTR returns the true range of the in-progress bar. At r == 1 the
// bar is the last closed bar of h; otherwise the bar's range is measured
// against the last closed close, or its own open when nothing has closed.
func FormingTR(h *candle.History, bar model.Candle) float64 {
	if bar.Ticks >= bar.BarSize {
		return candle.TrueRange(h.Raw(), 1)
	}
	prevClose := bar.Open
	if last, ok := h.Last(); ok {
		prevClose = last.Close
	}
	return candle.RangeAgainst(bar.High, bar.Low, prevClose)
}

func (a *ATR) UpdateForming(h *candle.History, bar model.Candle) {
	r := bar.Ratio()
	closing := r >= 1
	bars := h.Raw()
	n := len(bars)
	if closing {
		n--
	}
	w := a.key.Window
	tr := FormingTR(h, bar)
	prev := a.series.FormedValues.Last()

	var atr float64
	switch {
	case w > 0 && len(bars) > w:
		dropped := candle.TrueRange(bars, len(bars)-(n-w))
		atr = prev + r*(tr-dropped)/float64(w)
	default:
		atr = (prev*float64(n) + r*tr) / (float64(n) + r)
	}

	if closing {
		a.series.commit(bar.TS, atr, 0)
		slope := a.formedSlope()
		a.series.FormedSlopes.setLast(bar.TS, slope)
		a.series.FormingSlopes.setLast(bar.TS, slope)
		return
	}
	last := a.series.FormedValues.At(0)
	before := a.series.FormedValues.At(1)
	slope := r*(atr-last) + (1-r)*(last-before)
	a.series.setForming(bar.TS, atr, slope)
}

// UpdateFormed is a no-op: the formed track is committed by UpdateForming
// on the closing tick.
func (a *ATR) UpdateFormed(*candle.History, model.Candle) {}

func (a *ATR) formedSlope() float64 {
	return a.series.FormedValues.At(0) - a.series.FormedValues.At(1)
}

// Forming returns the forming ATR stepsBack points ago.
func (a *ATR) Forming(stepsBack int) float64 { return a.series.FormingValues.At(stepsBack) }

// Formed returns the formed ATR stepsBack bars ago.
func (a *ATR) Formed(stepsBack int) float64 { return a.series.FormedValues.At(stepsBack) }

// FormingSlope returns the forming slope stepsBack points ago.
func (a *ATR) FormingSlope(stepsBack int) float64 { return a.series.FormingSlopes.At(stepsBack) }

// FormedSlope returns the formed slope stepsBack bars ago.
func (a *ATR) FormedSlope(stepsBack int) float64 { return a.series.FormedSlopes.At(stepsBack) }

func (a *ATR) Results(formed bool) []model.IndicatorResult {
	vals, slopes := &a.series.FormingValues, &a.series.FormingSlopes
	if formed {
		vals, slopes = &a.series.FormedValues, &a.series.FormedSlopes
	}
	if vals.Len() == 0 {
		return nil
	}
	return []model.IndicatorResult{{
		Name:    a.key.Name(),
		Symbol:  a.key.Symbol,
		BarSize: a.key.BarSize,
		Value:   vals.Last(),
		Slope:   slopes.Last(),
		TS:      vals.LastTS(),
		Formed:  formed,
	}}
}

// ATRAt is the non-incremental ATR: the mean true range of the last
// min(window, len) bars after dropping stepsBack bars from the end.
// window <= 0 averages the whole history.
func ATRAt(bars []model.Candle, window, stepsBack int) float64 {
	if stepsBack > 0 {
		if stepsBack >= len(bars) {
			return 0
		}
		bars = bars[:len(bars)-stepsBack]
	}
	n := len(bars)
	if window > 0 {
		n = min(window, n)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for back := 1; back <= n; back++ {
		sum += candle.TrueRange(bars, back)
	}
	return sum / float64(n)
}
