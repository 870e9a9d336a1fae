package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"daytrader/internal/model"
)

// BracketType selects how the entry and take-profit legs are priced.
type BracketType string

const (
	// BracketBasic uses a limit entry, a limit take-profit and a stop.
	BracketBasic BracketType = "basic"
	// BracketMarket uses a market entry and a market take-profit that only
	// activates once the take-profit price trades.
	BracketMarket BracketType = "market"
	// BracketMarketEntry uses a market entry, a limit take-profit and a stop.
	BracketMarketEntry BracketType = "marketEntry"
)

// ParseBracketType maps a config string to a BracketType.
func ParseBracketType(s string) (BracketType, error) {
	switch BracketType(s) {
	case BracketBasic, BracketMarket, BracketMarketEntry:
		return BracketType(s), nil
	case "":
		return BracketBasic, nil
	}
	return "", fmt.Errorf("execution: unknown bracket type %q", s)
}

// BracketPrices are the price levels of a bracket. Entry is ignored for
// market entries.
type BracketPrices struct {
	Entry      float64
	TakeProfit float64
	StopLoss   float64
}

// BracketOrderSet is an entry with its take-profit and stop-loss children.
// Children reference the entry through ParentID and only the stop-loss, the
// last order, is transmitted; placing it releases the whole set.
type BracketOrderSet struct {
	Entry      model.Order
	TakeProfit model.Order
	StopLoss   model.Order
}

// Orders returns the set in placement order.
func (b BracketOrderSet) Orders() []model.Order {
	return []model.Order{b.Entry, b.TakeProfit, b.StopLoss}
}

// IDs returns the order ids in placement order.
func (b BracketOrderSet) IDs() []int64 {
	return []int64{b.Entry.ID, b.TakeProfit.ID, b.StopLoss.ID}
}

// BuildBracket assembles a bracket for symbol. nextID is called once per
// order, in placement order.
func BuildBracket(typ BracketType, nextID func() int64, symbol string, long bool, qty float64, p BracketPrices) (BracketOrderSet, error) {
	if qty <= 0 {
		return BracketOrderSet{}, fmt.Errorf("execution: bracket quantity must be positive, got %v", qty)
	}
	if long && p.TakeProfit <= p.StopLoss || !long && p.TakeProfit >= p.StopLoss {
		return BracketOrderSet{}, fmt.Errorf("execution: take-profit %v and stop-loss %v are on the wrong sides (long=%v)", p.TakeProfit, p.StopLoss, long)
	}
	action := model.ActionSell
	if long {
		action = model.ActionBuy
	}
	exit := model.Opposite(action)

	entry := model.Order{
		ID:     nextID(),
		Symbol: symbol,
		Role:   model.RoleEntry,
		Action: action,
		Qty:    qty,
		Status: model.StatusPending,
	}
	tp := model.Order{
		ID:       nextID(),
		ParentID: entry.ID,
		Symbol:   symbol,
		Role:     model.RoleTakeProfit,
		Action:   exit,
		Qty:      qty,
		Status:   model.StatusPending,
	}
	sl := model.Order{
		ID:        nextID(),
		ParentID:  entry.ID,
		Symbol:    symbol,
		Role:      model.RoleStopLoss,
		Action:    exit,
		Type:      model.OrderStop,
		Qty:       qty,
		StopPrice: p.StopLoss,
		Transmit:  true,
		Status:    model.StatusPending,
	}

	switch typ {
	case BracketBasic:
		if p.Entry <= 0 {
			return BracketOrderSet{}, fmt.Errorf("execution: basic bracket needs an entry price")
		}
		entry.Type, entry.LimitPrice = model.OrderLimit, p.Entry
		tp.Type, tp.LimitPrice = model.OrderLimit, p.TakeProfit
	case BracketMarket:
		entry.Type = model.OrderMarket
		tp.Type = model.OrderMarket
		tp.Condition = &model.PriceCondition{Price: p.TakeProfit, IsMore: long}
	case BracketMarketEntry:
		entry.Type = model.OrderMarket
		tp.Type, tp.LimitPrice = model.OrderLimit, p.TakeProfit
	default:
		return BracketOrderSet{}, fmt.Errorf("execution: unknown bracket type %q", typ)
	}
	return BracketOrderSet{Entry: entry, TakeProfit: tp, StopLoss: sl}, nil
}

// RoundToIncrement rounds x to the nearest multiple of increment. Ties go
// away from zero when up is set and toward zero otherwise.
func RoundToIncrement(x, increment float64, up bool) float64 {
	if increment <= 0 {
		return x
	}
	inc := decimal.NewFromFloat(increment)
	steps := decimal.NewFromFloat(x).Div(inc)
	var n decimal.Decimal
	if up {
		n = steps.Round(0)
	} else {
		whole := steps.Truncate(0)
		if steps.Sub(whole).Abs().Equal(decimal.NewFromFloat(0.5)) {
			n = whole
		} else {
			n = steps.Round(0)
		}
	}
	return n.Mul(inc).InexactFloat64()
}
