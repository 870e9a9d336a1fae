// Package indicator maintains incremental technical indicators over tick
// bars.
//
// Every indicator is owned by a Registry entry keyed by (symbol, barSize,
// kind, window). Indicators are fed twice per bar lifecycle: UpdateForming
// on every tick with the in-progress bar, and UpdateFormed once when a bar
// closes. ATR keeps both a forming and a formed track; DMI and ADX only
// update at bar close.
package indicator

import (
	"strconv"

	"daytrader/internal/candle"
	"daytrader/internal/model"
)

// Kind names an indicator family.
type Kind string

const (
	KindATR Kind = "ATR"
	KindDMI Kind = "DMI"
	KindADX Kind = "ADX"
	KindMA  Kind = "MA"
)

// Key identifies one indicator instance.
type Key struct {
	Symbol  string
	BarSize int
	Kind    Kind
	Window  int
	Kernel  string // kernel signature for KindMA, empty otherwise
}

// Name returns the display name, e.g. "ATR_14".
func (k Key) Name() string {
	n := string(k.Kind) + "_" + strconv.Itoa(k.Window)
	if k.Kernel != "" {
		n += "_" + k.Kernel
	}
	return n
}

// Source is a bar stream an indicator can be attached to.
type Source interface {
	Symbol() string
	BarSize() int
	History() *candle.History
}

// Indicator is the interface every registry entry implements.
type Indicator interface {
	Key() Key

	// UpdateForming is called after every tick with the in-progress bar.
	// When bar.Ticks == bar.BarSize the bar has just closed and is already
	// the last entry of h.
	UpdateForming(h *candle.History, bar model.Candle)

	// UpdateFormed is called once per closed bar, after UpdateForming.
	UpdateFormed(h *candle.History, bar model.Candle)

	// Results returns the latest points for publishing. formed selects the
	// formed track when the indicator has both.
	Results(formed bool) []model.IndicatorResult
}
