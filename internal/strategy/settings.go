package strategy

import (
	"fmt"
	"time"

	"daytrader/config"
	"daytrader/internal/execution"
	"daytrader/internal/indicator"
	"daytrader/internal/model"
)

// Strategy classes accepted in the "strategy" parameter.
const (
	ClassScalping      = "Scalping"
	ClassScalpingV2    = "Scalping_v2"
	ClassTrendScalping = "TrendScalping"
	ClassTrending      = "Trending"
	ClassSpiking       = "Spiking"
)

// Settings is the parsed parameter file of one strategy instance.
type Settings struct {
	Name     string
	Class    string
	Contract model.Contract
	BarSize  int
	Quantity float64
	// WaitTime is how long after entries stop the strategy may stay exposed
	// before it is flattened. Negative waits for the exits to fill.
	WaitTime time.Duration
	Flip     bool
	Bracket  execution.BracketType
	Policy   execution.ForeignPolicy

	// price buffers, in units of TickScale increments
	TickScale     int
	ProfitBuffer  int
	LossBuffer    int
	TargetBuffer  int
	FailureBuffer int

	SignalThresh   int
	Window         int
	SlopeWindow    int
	ADXThreshold   float64
	ATRThresh      float64
	ATRSlopeThresh float64
	MoveThresh     int
	SlopeKernel    indicator.Kernel

	Filters FilterSettings
}

// FilterSettings configures the entry filters of the signal-bar classes.
// Every filter is ignored unless its Ignore flag is cleared.
type FilterSettings struct {
	ATRWindow      int
	ATRMin, ATRMax float64
	ShortMA        int
	LongMA         int
	FlatMin        float64
	FlatMax        float64
	ADXThreshold   float64
	ADXSlopeWindow int
	ADXSlopeAlpha  float64

	IgnoreATR      bool
	IgnoreFlatMA   bool
	IgnoreSlopeMA  bool
	IgnoreCrossMA  bool
	IgnoreADX      bool
	IgnoreDMI      bool
	IgnoreADXSlope bool
}

// TickUnit is the price step the buffers are measured in.
func (s Settings) TickUnit() float64 {
	return float64(s.TickScale) * s.Contract.Increment()
}

// NewSettings parses p for the instance called name.
func NewSettings(name string, p config.Params) (Settings, error) {
	class := p.String("strategy", "")
	symbol := p.String("contract", "")
	if class == "" || symbol == "" {
		return Settings{}, fmt.Errorf("strategy %s: strategy and contract are required", name)
	}

	s := Settings{
		Name:  name,
		Class: class,
		Contract: model.Contract{
			Symbol:        symbol,
			SecType:       p.String("sectype", "STK"),
			Exchange:      p.String("exchange", "SMART"),
			Currency:      p.String("currency", "USD"),
			TickIncrement: p.Float("increment", 0.01),
		},
		BarSize:        p.Int("ticksperbar", 250),
		Quantity:       p.Float("quantity", 0),
		WaitTime:       time.Duration(p.Float("wait_time", 0) * float64(time.Second)),
		Flip:           p.Bool("flip", false),
		TickScale:      p.Int("tick_scale", 1),
		ProfitBuffer:   p.Int("profit_buffer", 2),
		LossBuffer:     p.Int("loss_buffer", 2),
		SignalThresh:   p.Int("signal_thresh", 3),
		Window:         p.Int("window", 14),
		SlopeWindow:    p.Int("slope_window", 1),
		ATRThresh:      p.Float("atr_thresh", 1),
		ATRSlopeThresh: p.Float("atr_slope_thresh", 1),
		MoveThresh:     p.Int("move_thresh", 1),
		SlopeKernel:    indicator.Kernel(p.Prefixed("slope_kernel_")),
	}
	if len(s.SlopeKernel) == 0 {
		s.SlopeKernel = nil
	}

	var bracket string
	switch class {
	case ClassScalping, ClassScalpingV2:
		s.TargetBuffer = p.Int("target_buffer", 1)
		s.FailureBuffer = p.Int("failure_buffer", 1)
		bracket = string(execution.BracketBasic)
	case ClassTrendScalping:
		s.TargetBuffer = p.Int("target_buffer", 2)
		s.FailureBuffer = p.Int("failure_buffer", 2)
		s.ADXThreshold = p.Float("adx_threshold", 20)
		bracket = string(execution.BracketBasic)
	case ClassTrending:
		s.ADXThreshold = p.Float("adx_threshold", 20)
		bracket = string(execution.BracketMarketEntry)
	case ClassSpiking:
		bracket = string(execution.BracketMarket)
	default:
		return Settings{}, fmt.Errorf("strategy %s: unknown class %q", name, class)
	}

	var err error
	if s.Bracket, err = execution.ParseBracketType(p.String("bracket_order_type", bracket)); err != nil {
		return Settings{}, fmt.Errorf("strategy %s: %w", name, err)
	}
	if s.Policy, err = execution.ParseForeignPolicy(p.String("foreign_policy", "")); err != nil {
		return Settings{}, fmt.Errorf("strategy %s: %w", name, err)
	}
	if s.Quantity <= 0 {
		return Settings{}, fmt.Errorf("strategy %s: quantity must be positive", name)
	}
	if s.BarSize < 1 || s.Window < 1 || s.TickScale < 1 {
		return Settings{}, fmt.Errorf("strategy %s: ticksperbar, window and tick_scale must be at least 1", name)
	}

	if class == ClassScalping || class == ClassScalpingV2 {
		s.Filters = parseFilters(p)
	}
	return s, nil
}

func parseFilters(p config.Params) FilterSettings {
	f := FilterSettings{
		ATRWindow:      p.Int("atr_window", 14),
		ADXThreshold:   p.Float("adx_threshold", 50),
		ADXSlopeWindow: p.Int("adx_slope_window", 3),
		ADXSlopeAlpha:  p.Float("adx_slope_alpha", 0.1),
		IgnoreATR:      p.Bool("ignore_atr", true),
		IgnoreFlatMA:   p.Bool("ignore_flatma", true),
		IgnoreSlopeMA:  p.Bool("ignore_slopema", true),
		IgnoreCrossMA:  p.Bool("ignore_crossma", true),
		IgnoreADX:      p.Bool("ignore_adx", true),
		IgnoreDMI:      p.Bool("ignore_dmi", true),
		IgnoreADXSlope: p.Bool("ignore_adx_slope", true),
	}
	f.ATRMin, f.ATRMax, _ = p.Range("atr_range")
	f.FlatMin, f.FlatMax, _ = p.Range("mashortflatrange")
	w1, w2 := p.Int("window_1", 7), p.Int("window_2", 14)
	f.ShortMA, f.LongMA = min(w1, w2), max(w1, w2)
	return f
}
