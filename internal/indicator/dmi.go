package indicator

import (
	"math"
	"strconv"

	"daytrader/internal/candle"
	"daytrader/internal/model"
)

// DMI maintains the smoothed true range, smoothed directional movement and
// the directional indicators +DI/-DI for one window. It updates only when a
// bar closes and needs at least two closed bars.
type DMI struct {
	key     Key
	str     *Smoother
	dmPlus  *Smoother
	dmMinus *Smoother
	diPlus  Track
	diMinus Track
}

// NewDMI creates a DMI and replays any bars already in h.
func NewDMI(key Key, h *candle.History) *DMI {
	key.Kind = KindDMI
	d := &DMI{
		key:     key,
		str:     NewSmoother(key.Window),
		dmPlus:  NewSmoother(key.Window),
		dmMinus: NewSmoother(key.Window),
	}
	if h != nil {
		bars := h.Raw()
		for i := 2; i <= len(bars); i++ {
			d.update(bars[:i])
		}
	}
	return d
}

func (d *DMI) Key() Key { return d.key }

// UpdateForming is a no-op: directional movement only changes at bar close.
func (d *DMI) UpdateForming(*candle.History, model.Candle) {}

func (d *DMI) UpdateFormed(h *candle.History, _ model.Candle) {
	d.update(h.Raw())
}

// DirectionalMovement returns (+DM, -DM) between prev and cur. When both
// are positive the smaller is zeroed; a tie zeroes both.
func DirectionalMovement(prev, cur model.Candle) (plus, minus float64) {
	plus = math.Max(cur.High-prev.High, 0)
	minus = math.Max(prev.Low-cur.Low, 0)
	switch {
	case plus > minus:
		minus = 0
	case minus > plus:
		plus = 0
	default:
		plus, minus = 0, 0
	}
	return plus, minus
}

func (d *DMI) update(bars []model.Candle) {
	n := len(bars)
	if n < 2 {
		return
	}
	cur := bars[n-1]
	ts := cur.TS

	str := d.str.Push(Point{TS: ts, Value: candle.TrueRange(bars, 1)})
	plus, minus := DirectionalMovement(bars[n-2], cur)
	sPlus := d.dmPlus.Push(Point{TS: ts, Value: plus})
	sMinus := d.dmMinus.Push(Point{TS: ts, Value: minus})

	var diPlus, diMinus float64
	if str != 0 {
		diPlus = 100 * sPlus / str
		diMinus = 100 * sMinus / str
	}
	d.diPlus.append(ts, diPlus)
	d.diMinus.append(ts, diMinus)
}

// PlusDI returns +DI stepsBack bars ago.
func (d *DMI) PlusDI(stepsBack int) float64 { return d.diPlus.At(stepsBack) }

// MinusDI returns -DI stepsBack bars ago.
func (d *DMI) MinusDI(stepsBack int) float64 { return d.diMinus.At(stepsBack) }

// STR returns the smoothed true range stepsBack bars ago.
func (d *DMI) STR(stepsBack int) float64 { return d.str.Track().At(stepsBack) }

// PlusDM returns the smoothed +DM stepsBack bars ago.
func (d *DMI) PlusDM(stepsBack int) float64 { return d.dmPlus.Track().At(stepsBack) }

// MinusDM returns the smoothed -DM stepsBack bars ago.
func (d *DMI) MinusDM(stepsBack int) float64 { return d.dmMinus.Track().At(stepsBack) }

// Len returns the number of DI points.
func (d *DMI) Len() int { return d.diPlus.Len() }

func (d *DMI) Results(formed bool) []model.IndicatorResult {
	if !formed || d.diPlus.Len() == 0 {
		return nil
	}
	base := model.IndicatorResult{
		Symbol:  d.key.Symbol,
		BarSize: d.key.BarSize,
		TS:      d.diPlus.LastTS(),
		Formed:  true,
	}
	plus, minus := base, base
	plus.Name = "DI+_" + strconv.Itoa(d.key.Window)
	plus.Value = d.diPlus.Last()
	plus.Slope = d.diPlus.At(0) - d.diPlus.At(1)
	minus.Name = "DI-_" + strconv.Itoa(d.key.Window)
	minus.Value = d.diMinus.Last()
	minus.Slope = d.diMinus.At(0) - d.diMinus.At(1)
	return []model.IndicatorResult{plus, minus}
}

// ADX smooths DX = 100*|+DI - -DI|/(+DI + -DI) from a DMI of the same
// window. Values are produced only once +DI has at least window points.
type ADX struct {
	key      Key
	dmi      *DMI
	smoother *Smoother
}

// NewADX creates an ADX over dmi and replays dmi's existing DI history.
func NewADX(key Key, dmi *DMI) *ADX {
	key.Kind = KindADX
	a := &ADX{key: key, dmi: dmi, smoother: NewSmoother(key.Window)}
	for i := range dmi.diPlus.points {
		a.push(i + 1)
	}
	return a
}

func (a *ADX) Key() Key { return a.key }

// DMI returns the directional indicator this ADX is derived from.
func (a *ADX) DMI() *DMI { return a.dmi }

func (a *ADX) UpdateForming(*candle.History, model.Candle) {}

// UpdateFormed must run after the DMI's UpdateFormed for the same bar.
func (a *ADX) UpdateFormed(h *candle.History, _ model.Candle) {
	if h.Len() < 2 {
		return
	}
	a.push(a.dmi.diPlus.Len())
}

// push folds the DX of the DI point at index n-1 when n >= window.
func (a *ADX) push(n int) {
	if n < a.key.Window || n == 0 {
		return
	}
	p := a.dmi.diPlus.points[n-1]
	m := a.dmi.diMinus.points[n-1].Value
	a.smoother.Push(Point{TS: p.TS, Value: DX(p.Value, m)})
}

// DX returns the directional index for a pair of DI values, 0 when both are 0.
func DX(plus, minus float64) float64 {
	sum := plus + minus
	if sum == 0 {
		return 0
	}
	return 100 * math.Abs(plus-minus) / math.Abs(sum)
}

// Value returns ADX stepsBack bars ago.
func (a *ADX) Value(stepsBack int) float64 { return a.smoother.Track().At(stepsBack) }

// Slope returns the change in ADX over the last bar, stepsBack bars ago.
func (a *ADX) Slope(stepsBack int) float64 {
	return a.smoother.Track().At(stepsBack) - a.smoother.Track().At(stepsBack+1)
}

// Len returns the number of ADX points.
func (a *ADX) Len() int { return a.smoother.Len() }

// Values returns the ADX history with stepsBack points dropped.
func (a *ADX) Values(stepsBack int) []float64 { return a.smoother.Track().Values(stepsBack) }

func (a *ADX) Results(formed bool) []model.IndicatorResult {
	if !formed || a.smoother.Len() == 0 {
		return nil
	}
	return []model.IndicatorResult{{
		Name:    a.key.Name(),
		Symbol:  a.key.Symbol,
		BarSize: a.key.BarSize,
		Value:   a.Value(0),
		Slope:   a.Slope(0),
		TS:      a.smoother.Track().LastTS(),
		Formed:  true,
	}}
}
