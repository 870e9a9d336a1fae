package indicator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"daytrader/internal/candle"
	"daytrader/internal/model"
)

// Kernel configures exponentially weighted averaging. Exactly one decay
// parameter is used, checked in the order alpha, span, com, halflife.
// The zero Kernel means a plain arithmetic mean.
type Kernel map[string]float64

// Alpha resolves the decay factor. ok is false for a plain mean.
func (k Kernel) Alpha() (alpha float64, ok bool) {
	if v, found := k["alpha"]; found && v > 0 && v <= 1 {
		return v, true
	}
	if v, found := k["span"]; found && v >= 1 {
		return 2 / (v + 1), true
	}
	if v, found := k["com"]; found && v >= 0 {
		return 1 / (1 + v), true
	}
	if v, found := k["halflife"]; found && v > 0 {
		return 1 - math.Exp(-math.Ln2/v), true
	}
	return 0, false
}

// Signature renders the kernel for use in a registry key.
func (k Kernel) Signature() string {
	if len(k) == 0 {
		return ""
	}
	keys := make([]string, 0, len(k))
	for name := range k {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, name := range keys {
		parts[i] = fmt.Sprintf("%s%g", name, k[name])
	}
	return strings.Join(parts, "_")
}

// mean averages vals: arithmetic, or with weights (1-alpha)^i where i = 0
// is the newest value.
func (k Kernel) mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	alpha, ok := k.Alpha()
	if !ok {
		var sum float64
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	}
	var num, den float64
	w := 1.0
	for i := len(vals) - 1; i >= 0; i-- {
		num += w * vals[i]
		den += w
		w *= 1 - alpha
	}
	return num / den
}

// MovingAverage returns the average of the trailing window of values after
// dropping stepsBack points from the end. Before window points exist the
// average covers every available point. window <= 0 averages everything.
// An empty series yields 0.
func MovingAverage(values []float64, window, stepsBack int, k Kernel) float64 {
	values = truncate(values, stepsBack)
	if len(values) == 0 {
		return 0
	}
	w := effectiveWindow(len(values), window)
	return k.mean(values[len(values)-w:])
}

// MovingAverageSeries returns the moving average at every position of
// values, with the warm-up ramp for the first window points.
func MovingAverageSeries(values []float64, window, stepsBack int, k Kernel) []float64 {
	values = truncate(values, stepsBack)
	if len(values) == 0 {
		return nil
	}
	w := effectiveWindow(len(values), window)
	out := make([]float64, len(values))
	for i := range values {
		lo := max(0, i-w+1)
		out[i] = k.mean(values[lo : i+1])
	}
	return out
}

// AverageSlope is MovingAverage over the first differences of values.
func AverageSlope(values []float64, window, stepsBack int, k Kernel) float64 {
	return MovingAverage(Diff(values), window, stepsBack, k)
}

// AverageSlopeSeries is MovingAverageSeries over the first differences.
func AverageSlopeSeries(values []float64, window, stepsBack int, k Kernel) []float64 {
	return MovingAverageSeries(Diff(values), window, stepsBack, k)
}

// Diff returns values[i]-values[i-1] for i >= 1.
func Diff(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

func truncate(values []float64, stepsBack int) []float64 {
	if stepsBack <= 0 {
		return values
	}
	if stepsBack >= len(values) {
		return nil
	}
	return values[:len(values)-stepsBack]
}

func effectiveWindow(n, window int) int {
	if window <= 0 {
		return n
	}
	return min(window, n)
}

// Closes extracts close prices from bars.
func Closes(bars []model.Candle) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// MAKey builds the registry key of a moving average.
func MAKey(symbol string, barSize, window int, kernel Kernel, smooth bool) Key {
	sig := kernel.Signature()
	if smooth {
		sig = strings.TrimSuffix("ha_"+sig, "_")
	}
	return Key{Symbol: symbol, BarSize: barSize, Kind: KindMA, Window: window, Kernel: sig}
}

// MA is a moving average of closed-bar closes. It records one formed
// point per closed bar and answers stepsBack queries from the bar history.
type MA struct {
	key    Key
	kernel Kernel
	smooth bool // average Heikin-Ashi closes instead of raw closes
	closes []float64
	values Track
	slopes Track
}

// NewMA creates a moving average and replays any bars already in h.
func NewMA(key Key, kernel Kernel, smooth bool, h *candle.History) *MA {
	key = MAKey(key.Symbol, key.BarSize, key.Window, kernel, smooth)
	m := &MA{key: key, kernel: kernel, smooth: smooth}
	if h != nil {
		for _, b := range h.Bars(smooth) {
			m.push(b)
		}
	}
	return m
}

func (m *MA) Key() Key { return m.key }

func (m *MA) UpdateForming(*candle.History, model.Candle) {}

func (m *MA) UpdateFormed(h *candle.History, bar model.Candle) {
	bars := h.Bars(m.smooth)
	if len(bars) == 0 {
		return
	}
	m.push(bars[len(bars)-1])
}

func (m *MA) push(b model.Candle) {
	m.closes = append(m.closes, b.Close)
	m.values.append(b.TS, MovingAverage(m.closes, m.key.Window, 0, m.kernel))
	m.slopes.append(b.TS, AverageSlope(m.closes, m.key.Window, 0, m.kernel))
}

// Value returns the average as of stepsBack bars ago.
func (m *MA) Value(stepsBack int) float64 { return m.values.At(stepsBack) }

// Slope returns the averaged slope as of stepsBack bars ago.
func (m *MA) Slope(stepsBack int) float64 { return m.slopes.At(stepsBack) }

// Values returns the complete average series with stepsBack points dropped.
func (m *MA) Values(stepsBack int) []float64 { return m.values.Values(stepsBack) }

// Slopes returns the complete slope series with stepsBack points dropped.
func (m *MA) Slopes(stepsBack int) []float64 { return m.slopes.Values(stepsBack) }

func (m *MA) Results(formed bool) []model.IndicatorResult {
	if !formed || m.values.Len() == 0 {
		return nil
	}
	return []model.IndicatorResult{{
		Name:    m.key.Name(),
		Symbol:  m.key.Symbol,
		BarSize: m.key.BarSize,
		Value:   m.values.Last(),
		Slope:   m.slopes.Last(),
		TS:      m.values.LastTS(),
		Formed:  true,
	}}
}
