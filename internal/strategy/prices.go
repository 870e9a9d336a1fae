package strategy

import (
	"math"

	"daytrader/internal/execution"
)

func sign(long bool) float64 {
	if long {
		return 1
	}
	return -1
}

func (s *Strategy) round(x float64, up bool) float64 {
	return execution.RoundToIncrement(x, s.Contract.Increment(), up)
}

// prices derives the bracket for v. failure is the price at which a
// still-working entry is abandoned; zero when the class has none.
func (s *Strategy) prices(v Verdict) (p execution.BracketPrices, failure float64) {
	scale := sign(v.Long) * s.TickUnit()
	switch s.Class {
	case ClassScalping, ClassTrendScalping:
		extreme := v.Bar.Low
		if v.Long {
			extreme = v.Bar.High
		}
		entry := s.round(extreme+float64(s.TargetBuffer)*scale, v.Long)
		p = execution.BracketPrices{
			Entry:      entry,
			TakeProfit: s.round(entry+float64(s.ProfitBuffer)*scale, v.Long),
			StopLoss:   s.round(entry-float64(s.LossBuffer)*scale, v.Long),
		}
		failure = v.Bar.Close - float64(s.FailureBuffer)*scale
	case ClassScalpingV2:
		extreme, other := v.Bar.Low, v.Bar.High
		if v.Long {
			extreme, other = v.Bar.High, v.Bar.Low
		}
		entry := s.round(extreme+float64(s.TargetBuffer)*scale, v.Long)
		loss := 0.5 * math.Abs(entry-other)
		p = execution.BracketPrices{
			Entry:      entry,
			TakeProfit: s.round(entry+float64(s.ProfitBuffer)*scale, v.Long),
			StopLoss:   s.round(entry-loss*sign(v.Long), v.Long),
		}
		failure = v.Bar.Close - float64(s.FailureBuffer)*scale
	default:
		// market entries are priced off the last trade
		p = execution.BracketPrices{
			Entry:      v.Price,
			TakeProfit: s.round(v.Price+float64(s.ProfitBuffer)*scale, v.Long),
			StopLoss:   s.round(v.Price-float64(s.LossBuffer)*scale, v.Long),
		}
	}
	return p, failure
}

// entryFailed reports whether price has moved through the failure point
// against the trade.
func entryFailed(price, failure float64, long bool) bool {
	if long {
		return price <= failure
	}
	return price >= failure
}
