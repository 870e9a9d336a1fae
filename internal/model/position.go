package model

// Position is the net holding in one symbol.
type Position struct {
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty"` // positive = long, negative = short
	AvgPrice    float64 `json:"avg_price"`
	LastPrice   float64 `json:"last_price"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// Flat reports whether there is no open quantity.
func (p *Position) Flat() bool {
	return p.Qty == 0
}

// UnrealizedPnL computes unrealized profit/loss at LastPrice.
func (p *Position) UnrealizedPnL() float64 {
	return (p.LastPrice - p.AvgPrice) * p.Qty
}

// ApplyFill folds a fill into the position and returns the P&L it realized.
func (p *Position) ApplyFill(action string, qty, price float64) float64 {
	signed := qty
	if action == ActionSell {
		signed = -qty
	}
	var realized float64
	switch {
	case p.Qty == 0 || (p.Qty > 0) == (signed > 0):
		total := p.Qty + signed
		p.AvgPrice = (p.AvgPrice*abs(p.Qty) + price*qty) / abs(total)
		p.Qty = total
	default:
		closing := min(abs(signed), abs(p.Qty))
		if p.Qty > 0 {
			realized = (price - p.AvgPrice) * closing
		} else {
			realized = (p.AvgPrice - price) * closing
		}
		p.Qty += signed
		switch {
		case p.Qty == 0:
			p.AvgPrice = 0
		case (p.Qty > 0) == (signed > 0):
			// flipped through zero
			p.AvgPrice = price
		}
	}
	p.RealizedPnL += realized
	p.LastPrice = price
	return realized
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
