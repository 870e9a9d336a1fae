package strategy

import (
	"fmt"

	"daytrader/internal/indicator"
)

// Filter vetoes entries. Triggered reports whether an entry in the given
// direction is blocked, with a description for the event log.
type Filter interface {
	Name() string
	Triggered(long bool) (bool, string)
}

type atrRangeFilter struct {
	atr      *indicator.ATR
	min, max float64
	ignore   bool
}

func (f atrRangeFilter) Name() string { return "ATR Range" }

func (f atrRangeFilter) Triggered(bool) (bool, string) {
	v := f.atr.Forming(0)
	hit := !f.ignore && !(f.min <= v && v <= f.max)
	return hit, fmt.Sprintf("ATR=%g min=%g max=%g ignored=%v", v, f.min, f.max, f.ignore)
}

// shortSlope is the last first difference of the short moving average.
func shortSlope(ma *indicator.MA) float64 {
	return indicator.AverageSlope(ma.Values(0), 1, 0, nil)
}

type flatMAFilter struct {
	short    *indicator.MA
	min, max float64
	ignore   bool
}

func (f flatMAFilter) Name() string { return "Flat Moving Average" }

func (f flatMAFilter) Triggered(bool) (bool, string) {
	s := shortSlope(f.short)
	hit := !f.ignore && f.min <= s && s <= f.max
	return hit, fmt.Sprintf("slope=%g min=%g max=%g ignored=%v", s, f.min, f.max, f.ignore)
}

type momentumMAFilter struct {
	short  *indicator.MA
	ignore bool
}

func (f momentumMAFilter) Name() string { return "Momentum Moving Average" }

func (f momentumMAFilter) Triggered(long bool) (bool, string) {
	s := shortSlope(f.short)
	hit := !f.ignore && long != (s > 0)
	return hit, fmt.Sprintf("slope=%g long=%v ignored=%v", s, long, f.ignore)
}

// crossMAFilter only allows entries toward the long average.
type crossMAFilter struct {
	short, long *indicator.MA
	ignore      bool
}

func (f crossMAFilter) Name() string { return "Moving Average Mean Reversion" }

func (f crossMAFilter) Triggered(long bool) (bool, string) {
	lv, sv := f.long.Value(0), f.short.Value(0)
	hit := !f.ignore && long != (lv > sv)
	return hit, fmt.Sprintf("long_ma=%g short_ma=%g long=%v ignored=%v", lv, sv, long, f.ignore)
}

type adxMinFilter struct {
	adx       *indicator.ADX
	threshold float64
	ignore    bool
}

func (f adxMinFilter) Name() string { return "ADX" }

func (f adxMinFilter) Triggered(bool) (bool, string) {
	if f.adx.Len() == 0 {
		return !f.ignore, fmt.Sprintf("ADX=none min=%g ignored=%v", f.threshold, f.ignore)
	}
	v := f.adx.Value(0)
	return !f.ignore && v < f.threshold, fmt.Sprintf("ADX=%g min=%g ignored=%v", v, f.threshold, f.ignore)
}

type dmiFilter struct {
	dmi    *indicator.DMI
	ignore bool
}

func (f dmiFilter) Name() string { return "DMI" }

func (f dmiFilter) Triggered(long bool) (bool, string) {
	plus, minus := f.dmi.PlusDI(0), f.dmi.MinusDI(0)
	hit := !f.ignore && long != (plus > minus)
	return hit, fmt.Sprintf("DI+=%g DI-=%g long=%v ignored=%v", plus, minus, long, f.ignore)
}

type adxSlopeFilter struct {
	adx    *indicator.ADX
	window int
	kernel indicator.Kernel
	ignore bool
}

func (f adxSlopeFilter) Name() string { return "ADX Slope" }

func (f adxSlopeFilter) Triggered(bool) (bool, string) {
	if f.adx.Len() < 2 {
		return !f.ignore, fmt.Sprintf("slope=none window=%d ignored=%v", f.window, f.ignore)
	}
	s := indicator.AverageSlope(f.adx.Values(0), f.window, 0, f.kernel)
	return !f.ignore && s < 0, fmt.Sprintf("slope=%g window=%d ignored=%v", s, f.window, f.ignore)
}

// buildFilters resolves the filter indicators for src from reg.
func buildFilters(src indicator.Source, reg *indicator.Registry, f FilterSettings) []Filter {
	atr := reg.ATR(src, f.ATRWindow)
	adx := reg.ADX(src, f.ATRWindow)
	short := reg.MA(src, f.ShortMA, nil, false)
	long := reg.MA(src, f.LongMA, nil, false)
	return []Filter{
		atrRangeFilter{atr: atr, min: f.ATRMin, max: f.ATRMax, ignore: f.IgnoreATR},
		flatMAFilter{short: short, min: f.FlatMin, max: f.FlatMax, ignore: f.IgnoreFlatMA},
		momentumMAFilter{short: short, ignore: f.IgnoreSlopeMA},
		crossMAFilter{short: short, long: long, ignore: f.IgnoreCrossMA},
		adxMinFilter{adx: adx, threshold: f.ADXThreshold, ignore: f.IgnoreADX},
		dmiFilter{dmi: adx.DMI(), ignore: f.IgnoreDMI},
		adxSlopeFilter{adx: adx, window: f.ADXSlopeWindow, kernel: indicator.Kernel{"alpha": f.ADXSlopeAlpha}, ignore: f.IgnoreADXSlope},
	}
}
