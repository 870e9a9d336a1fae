package indicator

import (
	"log/slog"
	"time"

	"daytrader/internal/candle"
	"daytrader/internal/model"
)

type streamKey struct {
	symbol  string
	barSize int
}

// Registry owns every indicator instance, keyed by (symbol, barSize, kind,
// window). Entries are created on first request, seeded from the bar
// history, and live for the lifetime of the registry.
// Designed for single-goroutine usage. No locks.
type Registry struct {
	byKey    map[Key]Indicator
	byStream map[streamKey][]Indicator // update order = creation order

	// Optional hooks, set externally.
	OnForming func(results []model.IndicatorResult)
	OnFormed  func(results []model.IndicatorResult)
	OnCompute func(d time.Duration)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:    make(map[Key]Indicator),
		byStream: make(map[streamKey][]Indicator),
	}
}

func (r *Registry) add(ind Indicator) {
	k := ind.Key()
	r.byKey[k] = ind
	sk := streamKey{k.Symbol, k.BarSize}
	r.byStream[sk] = append(r.byStream[sk], ind)
	slog.Debug("indicator registered", "name", k.Name(), "symbol", k.Symbol, "bar_size", k.BarSize)
}

// Get returns the indicator for k if it exists.
func (r *Registry) Get(k Key) (Indicator, bool) {
	ind, ok := r.byKey[k]
	return ind, ok
}

// Len returns the number of registered indicators.
func (r *Registry) Len() int { return len(r.byKey) }

// ATR returns the ATR for src and window, creating it if needed.
func (r *Registry) ATR(src Source, window int) *ATR {
	k := Key{Symbol: src.Symbol(), BarSize: src.BarSize(), Kind: KindATR, Window: window}
	if ind, ok := r.byKey[k]; ok {
		return ind.(*ATR)
	}
	a := NewATR(k, src.History())
	r.add(a)
	return a
}

// DMI returns the DMI for src and window, creating it if needed.
func (r *Registry) DMI(src Source, window int) *DMI {
	k := Key{Symbol: src.Symbol(), BarSize: src.BarSize(), Kind: KindDMI, Window: window}
	if ind, ok := r.byKey[k]; ok {
		return ind.(*DMI)
	}
	d := NewDMI(k, src.History())
	r.add(d)
	return d
}

// ADX returns the ADX for src and window, creating it and its DMI if
// needed. The DMI is always registered before the ADX so that it updates
// first on every bar close.
func (r *Registry) ADX(src Source, window int) *ADX {
	k := Key{Symbol: src.Symbol(), BarSize: src.BarSize(), Kind: KindADX, Window: window}
	if ind, ok := r.byKey[k]; ok {
		return ind.(*ADX)
	}
	a := NewADX(k, r.DMI(src, window))
	r.add(a)
	return a
}

// MA returns the moving average of closes for src, creating it if needed.
func (r *Registry) MA(src Source, window int, kernel Kernel, smooth bool) *MA {
	k := MAKey(src.Symbol(), src.BarSize(), window, kernel, smooth)
	if ind, ok := r.byKey[k]; ok {
		return ind.(*MA)
	}
	m := NewMA(k, kernel, smooth, src.History())
	r.add(m)
	return m
}

// UpdateForming feeds the in-progress bar to every indicator of its stream.
func (r *Registry) UpdateForming(h *candle.History, bar model.Candle) {
	inds := r.byStream[streamKey{bar.Symbol, bar.BarSize}]
	if len(inds) == 0 {
		return
	}
	start := time.Now()
	for _, ind := range inds {
		ind.UpdateForming(h, bar)
	}
	r.observe(start)
	if r.OnForming != nil {
		r.OnForming(collect(inds, false))
	}
}

// UpdateFormed feeds a just-closed bar to every indicator of its stream.
func (r *Registry) UpdateFormed(h *candle.History, bar model.Candle) {
	inds := r.byStream[streamKey{bar.Symbol, bar.BarSize}]
	if len(inds) == 0 {
		return
	}
	start := time.Now()
	for _, ind := range inds {
		ind.UpdateFormed(h, bar)
	}
	r.observe(start)
	if r.OnFormed != nil {
		r.OnFormed(collect(inds, true))
	}
}

// Results returns the latest formed points of every indicator on a stream.
func (r *Registry) Results(symbol string, barSize int) []model.IndicatorResult {
	return collect(r.byStream[streamKey{symbol, barSize}], true)
}

func (r *Registry) observe(start time.Time) {
	if r.OnCompute != nil {
		r.OnCompute(time.Since(start))
	}
}

func collect(inds []Indicator, formed bool) []model.IndicatorResult {
	var out []model.IndicatorResult
	for _, ind := range inds {
		out = append(out, ind.Results(formed)...)
	}
	return out
}
