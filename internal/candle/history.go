package candle

import "daytrader/internal/model"

// History is the append-only record of closed bars for one (symbol,
// barSize) subscription together with its Heikin-Ashi series. Both slices
// always have the same length.
type History struct {
	raw    []model.Candle
	smooth []model.Candle
}

// NewHistory returns an empty history with capacity hint n.
func NewHistory(n int) *History {
	return &History{
		raw:    make([]model.Candle, 0, n),
		smooth: make([]model.Candle, 0, n),
	}
}

// Append records a closed bar and its smoothed counterpart, returning the
// smoothed bar.
func (h *History) Append(c model.Candle) model.Candle {
	c.Forming = false
	ha := HeikinAshi(h.lastSmooth(), c)
	h.raw = append(h.raw, c)
	h.smooth = append(h.smooth, ha)
	return ha
}

// Smoothed returns the Heikin-Ashi bar that c would produce if it closed
// now. Used for the forming bar.
func (h *History) Smoothed(c model.Candle) model.Candle {
	return HeikinAshi(h.lastSmooth(), c)
}

func (h *History) lastSmooth() *model.Candle {
	if len(h.smooth) == 0 {
		return nil
	}
	return &h.smooth[len(h.smooth)-1]
}

// Len returns the number of closed bars.
func (h *History) Len() int { return len(h.raw) }

// Raw returns the closed bars, oldest first. Callers must not modify it.
func (h *History) Raw() []model.Candle { return h.raw }

// Smooth returns the Heikin-Ashi bars, oldest first. Callers must not modify it.
func (h *History) Smooth() []model.Candle { return h.smooth }

// Bars returns Smooth when smooth is set, Raw otherwise.
func (h *History) Bars(smooth bool) []model.Candle {
	if smooth {
		return h.smooth
	}
	return h.raw
}

// Last returns the most recent closed bar.
func (h *History) Last() (model.Candle, bool) {
	if len(h.raw) == 0 {
		return model.Candle{}, false
	}
	return h.raw[len(h.raw)-1], true
}
