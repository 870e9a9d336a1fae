package execution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"daytrader/internal/model"
)

func tick(p *PaperBroker, price float64) {
	p.OnTick(model.Tick{Symbol: "SPY", Price: price, Qty: 1, TS: time.Now()})
}

func placeSet(t *testing.T, p *PaperBroker, set BracketOrderSet) {
	t.Helper()
	for _, o := range set.Orders() {
		if err := p.PlaceOrder(context.Background(), o); err != nil {
			t.Fatalf("PlaceOrder(%d): %v", o.ID, err)
		}
	}
}

func kinds(evs []model.OrderEvent) map[model.OrderEventKind]int {
	out := make(map[model.OrderEventKind]int)
	for _, ev := range evs {
		out[ev.Kind]++
	}
	return out
}

func TestPaperBroker_HoldsUntilTransmit(t *testing.T) {
	p := NewPaperBroker(0, 0, 0)
	tick(p, 100)
	set, _ := BuildBracket(BracketMarketEntry, p.NextOrderID, "SPY", true, 1, BracketPrices{TakeProfit: 102, StopLoss: 98})

	ctx := context.Background()
	p.PlaceOrder(ctx, set.Entry)
	p.PlaceOrder(ctx, set.TakeProfit)
	if pos, _ := p.Position(ctx, "SPY"); pos != 0 {
		t.Fatalf("held market entry filled early, position %v", pos)
	}
	open, _ := p.OpenOrders(ctx, "SPY")
	if len(open) != 2 {
		t.Fatalf("open orders = %d, want 2 held", len(open))
	}

	p.PlaceOrder(ctx, set.StopLoss)
	if pos, _ := p.Position(ctx, "SPY"); pos != 1 {
		t.Fatalf("position = %v after transmit, want 1", pos)
	}
	open, _ = p.OpenOrders(ctx, "SPY")
	if len(open) != 2 {
		t.Fatalf("open orders = %d, want the two exits", len(open))
	}
}

func TestPaperBroker_TakeProfitCancelsStop(t *testing.T) {
	p := NewPaperBroker(0, 0, 0.5)
	tick(p, 100)
	set, _ := BuildBracket(BracketBasic, p.NextOrderID, "SPY", true, 2, BracketPrices{Entry: 100, TakeProfit: 102, StopLoss: 98})
	placeSet(t, p, set)
	p.TakeEvents()

	tick(p, 101)
	if evs := p.TakeEvents(); len(evs) != 0 {
		t.Fatalf("unexpected events %v", evs)
	}
	tick(p, 102.5)

	evs := p.TakeEvents()
	k := kinds(evs)
	if k[model.EventFill] != 1 || k[model.EventCancelled] != 1 || k[model.EventCommission] != 1 {
		t.Fatalf("events = %v", k)
	}
	fill := evs[0]
	if fill.OrderID != set.TakeProfit.ID || fill.Price != 102 || fill.RealizedPnL != 4 || fill.Commission != 1 {
		t.Errorf("take-profit fill = %+v", fill)
	}
	sl, _ := p.Order(set.StopLoss.ID)
	if sl.Status != model.StatusCancelled {
		t.Errorf("stop-loss status = %s", sl.Status)
	}
	if pos, _ := p.Position(context.Background(), "SPY"); pos != 0 {
		t.Errorf("position = %v, want 0", pos)
	}
}

func TestPaperBroker_StopWithSlippage(t *testing.T) {
	p := NewPaperBroker(0, 10, 0)
	tick(p, 100)
	set, _ := BuildBracket(BracketMarketEntry, p.NextOrderID, "SPY", true, 1, BracketPrices{TakeProfit: 102, StopLoss: 98})
	placeSet(t, p, set)

	fills := p.GetFills()
	if len(fills) != 1 || math.Abs(fills[0].FillPrice-100.1) > 1e-9 {
		t.Fatalf("entry fills = %+v, want one at 100.1", fills)
	}
	tick(p, 97)
	fills = p.GetFills()
	if len(fills) != 2 || fills[1].OrderID != set.StopLoss.ID {
		t.Fatalf("fills = %+v", fills)
	}
	if got := fills[1].FillPrice; got != 97-97*10.0/10000 {
		t.Errorf("stop fill = %v", got)
	}
}

func TestPaperBroker_ConditionalTakeProfit(t *testing.T) {
	p := NewPaperBroker(0, 0, 0)
	tick(p, 100)
	set, _ := BuildBracket(BracketMarket, p.NextOrderID, "SPY", false, 1, BracketPrices{TakeProfit: 98, StopLoss: 102})
	placeSet(t, p, set)
	if pos, _ := p.Position(context.Background(), "SPY"); pos != -1 {
		t.Fatalf("position = %v, want -1", pos)
	}

	tick(p, 99)
	if tp, _ := p.Order(set.TakeProfit.ID); tp.Status != model.StatusSubmitted {
		t.Fatalf("take-profit triggered before its condition: %s", tp.Status)
	}
	tick(p, 97.5)
	if tp, _ := p.Order(set.TakeProfit.ID); tp.Status != model.StatusFilled || tp.AvgPrice != 97.5 {
		t.Errorf("take-profit = %+v", tp)
	}
}

func TestPaperBroker_CancelParentCascades(t *testing.T) {
	p := NewPaperBroker(0, 0, 0)
	set, _ := BuildBracket(BracketBasic, p.NextOrderID, "SPY", true, 1, BracketPrices{Entry: 90, TakeProfit: 95, StopLoss: 85})
	placeSet(t, p, set)
	ctx := context.Background()

	if err := p.CancelOrder(ctx, set.Entry.ID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if open, _ := p.OpenOrders(ctx, "SPY"); len(open) != 0 {
		t.Errorf("open orders after parent cancel: %v", open)
	}
	if err := p.CancelOrder(ctx, set.TakeProfit.ID); !errors.Is(err, ErrOrderNotLive) {
		t.Errorf("second cancel err = %v, want ErrOrderNotLive", err)
	}
	if err := p.CancelOrder(ctx, 999); !errors.Is(err, ErrUnknownOrder) {
		t.Errorf("unknown cancel err = %v, want ErrUnknownOrder", err)
	}
}

func TestPaperBroker_RejectsInvalid(t *testing.T) {
	p := NewPaperBroker(0, 0, 0)
	ctx := context.Background()
	bad := []model.Order{
		{ID: 1, Symbol: "SPY", Action: model.ActionBuy, Type: model.OrderLimit, Qty: 1},
		{ID: 2, Symbol: "SPY", Action: "HOLD", Type: model.OrderMarket, Qty: 1},
		{ID: 3, Symbol: "SPY", Action: model.ActionBuy, Type: model.OrderMarket, Qty: 0},
		{ID: 4, ParentID: 77, Symbol: "SPY", Action: model.ActionBuy, Type: model.OrderMarket, Qty: 1},
	}
	for _, o := range bad {
		if err := p.PlaceOrder(ctx, o); err == nil {
			t.Errorf("order %d accepted", o.ID)
		}
	}

	p.Reject = func(o model.Order) error { return errors.New("margin") }
	if err := p.PlaceOrder(ctx, model.Order{ID: 5, Symbol: "SPY", Action: model.ActionBuy, Type: model.OrderMarket, Qty: 1}); err == nil {
		t.Error("Reject hook ignored")
	}
}

func TestPaperBroker_RunDelivers(t *testing.T) {
	p := NewPaperBroker(0, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan model.OrderEvent, 16)
	go p.Run(ctx, func(_ context.Context, ev model.OrderEvent) error {
		got <- ev
		return nil
	})

	tick(p, 50)
	p.PlaceOrder(ctx, model.Order{ID: p.NextOrderID(), Symbol: "SPY", Action: model.ActionBuy,
		Type: model.OrderMarket, Qty: 1, Transmit: true})

	want := []model.OrderEventKind{model.EventNew, model.EventFill, model.EventCommission}
	for _, k := range want {
		select {
		case ev := <-got:
			if ev.Kind != k {
				t.Fatalf("event kind = %s, want %s", ev.Kind, k)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", k)
		}
	}
}
