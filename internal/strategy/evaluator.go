package strategy

import (
	"fmt"

	"daytrader/internal/candle"
	"daytrader/internal/indicator"
	"daytrader/internal/marketdata/agg"
	"daytrader/internal/model"
)

// Verdict is an evaluator's reading of the market at one event.
type Verdict struct {
	Enter bool
	Long  bool
	Exit  bool
	Bar   model.Candle // bar entry prices are derived from
	Price float64      // last trade price
}

// Evaluator decides entries and exits for a strategy.
type Evaluator interface {
	// TickDriven reports whether Evaluate runs on every tick rather than
	// on bar close.
	TickDriven() bool
	Evaluate(price float64) Verdict
}

type recordFunc func(kind, msg string)

func lastBar(bars []model.Candle) (model.Candle, bool) {
	if len(bars) == 0 {
		return model.Candle{}, false
	}
	return bars[len(bars)-1], true
}

// SignalBarEvaluator enters on the first Heikin-Ashi bar of a new move
// that follows a move of at least Thresh bars.
type SignalBarEvaluator struct {
	stream *agg.TickAggregator
	thresh int
	flip   bool
	record recordFunc
}

func NewSignalBarEvaluator(stream *agg.TickAggregator, thresh int, flip bool, record recordFunc) *SignalBarEvaluator {
	return &SignalBarEvaluator{stream: stream, thresh: thresh, flip: flip, record: record}
}

func (e *SignalBarEvaluator) TickDriven() bool { return false }

func (e *SignalBarEvaluator) Evaluate(price float64) Verdict {
	bars := e.stream.History().Smooth()
	ok, color := candle.IsSignalBar(bars, e.thresh)
	if !ok {
		return Verdict{Price: price}
	}
	bar, _ := lastBar(bars)
	e.record(model.RecordSignal, fmt.Sprintf("Signal Bar ha_color=%s ha_open=%g ha_close=%g ha_high=%g ha_low=%g",
		color, bar.Open, bar.Close, bar.High, bar.Low))
	return Verdict{Enter: true, Long: (color == candle.Green) != e.flip, Bar: bar, Price: price}
}

// ADXTrendEvaluator enters in the direction of the dominant DI while ADX is
// above a threshold and rising, and the last Heikin-Ashi bar agrees.
type ADXTrendEvaluator struct {
	stream      *agg.TickAggregator
	adx         *indicator.ADX
	slopeWindow int
	threshold   float64
	kernel      indicator.Kernel
	flip        bool
	exitOnSlope bool
	record      recordFunc
}

func NewADXTrendEvaluator(stream *agg.TickAggregator, adx *indicator.ADX, slopeWindow int, threshold float64,
	kernel indicator.Kernel, flip, exitOnSlope bool, record recordFunc) *ADXTrendEvaluator {
	return &ADXTrendEvaluator{
		stream:      stream,
		adx:         adx,
		slopeWindow: slopeWindow,
		threshold:   threshold,
		kernel:      kernel,
		flip:        flip,
		exitOnSlope: exitOnSlope,
		record:      record,
	}
}

func (e *ADXTrendEvaluator) TickDriven() bool { return false }

// Slope is the averaged ADX slope over the evaluator's slope window.
func (e *ADXTrendEvaluator) Slope() float64 {
	return indicator.AverageSlope(e.adx.Values(0), e.slopeWindow, 0, e.kernel)
}

func (e *ADXTrendEvaluator) Evaluate(price float64) Verdict {
	adx := e.adx.Value(0)
	slope := e.Slope()
	plus, minus := e.adx.DMI().PlusDI(0), e.adx.DMI().MinusDI(0)
	e.record(model.RecordSignal, fmt.Sprintf("ADX Bar window=%d threshold=%g ADX=%g slope=%g DI+=%g DI-=%g",
		e.adx.Key().Window, e.threshold, adx, slope, plus, minus))

	bar, ok := lastBar(e.stream.History().Smooth())
	bull := plus > minus
	goodColor := ok && (candle.ColorOf(bar) == candle.Green) == bull
	return Verdict{
		Enter: adx > e.threshold && slope > 0 && plus != minus && goodColor,
		Long:  bull != e.flip,
		Exit:  e.exitOnSlope && slope <= 0,
		Bar:   bar,
		Price: price,
	}
}

// FormingATREvaluator enters on ticks while the forming ATR and its slope
// are above thresholds and the forming bar extends a long enough
// Heikin-Ashi move.
type FormingATREvaluator struct {
	stream      *agg.TickAggregator
	atr         *indicator.ATR
	thresh      float64
	slopeThresh float64
	moveThresh  int
	flip        bool
	record      recordFunc
}

func NewFormingATREvaluator(stream *agg.TickAggregator, atr *indicator.ATR, thresh, slopeThresh float64,
	moveThresh int, flip bool, record recordFunc) *FormingATREvaluator {
	return &FormingATREvaluator{
		stream:      stream,
		atr:         atr,
		thresh:      thresh,
		slopeThresh: slopeThresh,
		moveThresh:  moveThresh,
		flip:        flip,
		record:      record,
	}
}

func (e *FormingATREvaluator) TickDriven() bool { return true }

func (e *FormingATREvaluator) Evaluate(price float64) Verdict {
	cur, ok := e.stream.Current()
	if !ok {
		return Verdict{Price: price}
	}
	atr, slope := e.atr.Forming(0), e.atr.FormingSlope(0)
	move := candle.CurrentMove(e.stream.History().Smooth())
	enter := atr > e.thresh &&
		slope > e.slopeThresh &&
		move.Size > e.moveThresh &&
		move.Color == candle.ColorOf(cur) &&
		(move.Color == candle.Green || move.Color == candle.Red)
	if !enter {
		return Verdict{Price: price}
	}
	e.record(model.RecordSignal, fmt.Sprintf("Forming ATR ATR=%g slope=%g move=%s/%d price=%g",
		atr, slope, move.Color, move.Size, price))
	return Verdict{Enter: true, Long: (move.Color == candle.Green) != e.flip, Price: price}
}
