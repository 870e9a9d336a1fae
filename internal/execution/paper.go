package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"daytrader/internal/model"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   int64     `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	FillPrice float64   `json:"fill_price"`
	FillQty   float64   `json:"fill_qty"`
	FilledAt  time.Time `json:"filled_at"`
	Slippage  float64   `json:"slippage"`
}

// PaperBroker simulates a venue: it holds untransmitted bracket legs,
// matches working orders against ticks and reports order events.
type PaperBroker struct {
	mu        sync.Mutex
	orderSeq  int64
	orders    map[int64]*model.Order
	positions map[string]*model.Position
	last      map[string]float64
	extremes  map[int64]float64
	fills     []Fill
	pending   []model.OrderEvent
	notify    chan struct{}
	now       func() time.Time
	log       *slog.Logger

	// Simulation parameters
	slippageBps float64 // basis points of slippage on market and stop fills
	commission  float64 // per unit

	// Reject, when set, is consulted before accepting an order.
	Reject func(o model.Order) error
}

// NewPaperBroker creates a paper broker. Order ids start after firstID.
func NewPaperBroker(firstID int64, slippageBps, commissionPerUnit float64) *PaperBroker {
	return &PaperBroker{
		orderSeq:    firstID,
		orders:      make(map[int64]*model.Order),
		positions:   make(map[string]*model.Position),
		last:        make(map[string]float64),
		extremes:    make(map[int64]float64),
		fills:       make([]Fill, 0, 1000),
		notify:      make(chan struct{}, 1),
		now:         time.Now,
		log:         slog.Default().With("component", "paper"),
		slippageBps: slippageBps,
		commission:  commissionPerUnit,
	}
}

// NextOrderID implements Broker.
func (p *PaperBroker) NextOrderID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderSeq++
	return p.orderSeq
}

// PlaceOrder implements Broker.
func (p *PaperBroker) PlaceOrder(_ context.Context, o model.Order) error {
	if err := validate(o); err != nil {
		return err
	}
	if p.Reject != nil {
		if err := p.Reject(o); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.orders[o.ID]; dup {
		return fmt.Errorf("paper: duplicate order id %d", o.ID)
	}
	if o.ParentID != 0 {
		if _, ok := p.orders[o.ParentID]; !ok {
			return fmt.Errorf("paper: parent %d of order %d: %w", o.ParentID, o.ID, ErrUnknownOrder)
		}
	}
	o.Status = model.StatusPending
	o.FilledQty, o.AvgPrice = 0, 0
	o.CreatedAt = p.now()
	stored := o
	p.orders[o.ID] = &stored
	p.emit(model.OrderEvent{Kind: model.EventNew, OrderID: o.ID, Symbol: o.Symbol, Action: o.Action, Type: o.Type, Qty: o.Qty})

	if o.Transmit {
		root := o.ID
		if o.ParentID != 0 {
			root = o.ParentID
		}
		for _, id := range p.sortedIDs() {
			w := p.orders[id]
			if w.Status == model.StatusPending && (w.ID == root || w.ParentID == root) {
				w.Status = model.StatusSubmitted
			}
		}
		if px, ok := p.last[o.Symbol]; ok {
			p.match(o.Symbol, px)
		}
	}
	return nil
}

func validate(o model.Order) error {
	if o.ID == 0 || o.Symbol == "" {
		return fmt.Errorf("paper: order needs an id and a symbol")
	}
	if o.Qty <= 0 {
		return fmt.Errorf("paper: order %d quantity must be positive", o.ID)
	}
	if o.Action != model.ActionBuy && o.Action != model.ActionSell {
		return fmt.Errorf("paper: order %d has unknown action %q", o.ID, o.Action)
	}
	switch o.Type {
	case model.OrderMarket:
	case model.OrderLimit:
		if o.LimitPrice <= 0 {
			return fmt.Errorf("paper: limit order %d needs a limit price", o.ID)
		}
	case model.OrderStop:
		if o.StopPrice <= 0 {
			return fmt.Errorf("paper: stop order %d needs a stop price", o.ID)
		}
	case model.OrderTrail:
		if o.TrailAmount <= 0 {
			return fmt.Errorf("paper: trailing order %d needs a trail amount", o.ID)
		}
	default:
		return fmt.Errorf("paper: order %d has unknown type %q", o.ID, o.Type)
	}
	return nil
}

// CancelOrder implements Broker. Cancelling a parent cancels its children.
func (p *PaperBroker) CancelOrder(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return fmt.Errorf("paper: cancel %d: %w", id, ErrUnknownOrder)
	}
	if !o.Live() {
		return fmt.Errorf("paper: cancel %d (%s): %w", id, o.Status, ErrOrderNotLive)
	}
	p.cancel(o)
	for _, cid := range p.sortedIDs() {
		if c := p.orders[cid]; c.ParentID == id && c.Live() {
			p.cancel(c)
		}
	}
	return nil
}

func (p *PaperBroker) cancel(o *model.Order) {
	o.Status = model.StatusCancelled
	p.emit(model.OrderEvent{Kind: model.EventCancelled, OrderID: o.ID, Symbol: o.Symbol, Action: o.Action, Type: o.Type, Qty: o.Qty})
}

// OpenOrders implements Broker. Held (untransmitted) orders are included.
func (p *PaperBroker) OpenOrders(_ context.Context, symbol string) ([]model.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Order
	for _, id := range p.sortedIDs() {
		if o := p.orders[id]; o.Symbol == symbol && o.Live() {
			out = append(out, *o)
		}
	}
	return out, nil
}

// Position implements Broker.
func (p *PaperBroker) Position(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[symbol]; ok {
		return pos.Qty, nil
	}
	return 0, nil
}

// Order returns a copy of the order with id.
func (p *PaperBroker) Order(id int64) (model.Order, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// GetFills returns a snapshot of all fills.
func (p *PaperBroker) GetFills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// OnTick updates the last price for the tick's symbol and fills every
// working order the price reaches.
func (p *PaperBroker) OnTick(t model.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[t.Symbol] = t.Price
	if pos, ok := p.positions[t.Symbol]; ok {
		pos.LastPrice = t.Price
	}
	p.match(t.Symbol, t.Price)
}

// match runs until no further order triggers, since one fill can
// activate children at the same price.
func (p *PaperBroker) match(symbol string, px float64) {
	for {
		progressed := false
		for _, id := range p.sortedIDs() {
			o := p.orders[id]
			if o.Symbol != symbol || o.Status != model.StatusSubmitted || !p.active(o, px) {
				continue
			}
			fillPx, ok := p.trigger(o, px)
			if !ok {
				continue
			}
			p.fill(o, fillPx)
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

func (p *PaperBroker) active(o *model.Order, px float64) bool {
	if o.ParentID != 0 {
		parent, ok := p.orders[o.ParentID]
		if !ok || parent.Status != model.StatusFilled {
			return false
		}
	}
	if o.Condition != nil && !o.Condition.Met(px) {
		return false
	}
	return true
}

func (p *PaperBroker) trigger(o *model.Order, px float64) (float64, bool) {
	buy := o.Action == model.ActionBuy
	switch o.Type {
	case model.OrderMarket:
		return p.slip(buy, px), true
	case model.OrderLimit:
		if buy && px <= o.LimitPrice || !buy && px >= o.LimitPrice {
			return o.LimitPrice, true
		}
	case model.OrderStop:
		if buy && px >= o.StopPrice || !buy && px <= o.StopPrice {
			return p.slip(buy, px), true
		}
	case model.OrderTrail:
		ext, seen := p.extremes[o.ID]
		if !seen || buy && px < ext || !buy && px > ext {
			ext = px
			p.extremes[o.ID] = ext
		}
		if buy && px >= ext+o.TrailAmount || !buy && px <= ext-o.TrailAmount {
			return p.slip(buy, px), true
		}
	}
	return 0, false
}

func (p *PaperBroker) slip(buy bool, px float64) float64 {
	s := px * p.slippageBps / 10000
	if buy {
		return px + s // buy higher
	}
	return px - s // sell lower
}

func (p *PaperBroker) fill(o *model.Order, px float64) {
	o.Status = model.StatusFilled
	o.FilledQty = o.Qty
	o.AvgPrice = px

	pos, ok := p.positions[o.Symbol]
	if !ok {
		pos = &model.Position{Symbol: o.Symbol}
		p.positions[o.Symbol] = pos
	}
	realized := pos.ApplyFill(o.Action, o.Qty, px)
	commission := p.commission * o.Qty
	now := p.now()

	ref := px
	if o.Type == model.OrderLimit {
		ref = o.LimitPrice
	} else if last, ok := p.last[o.Symbol]; ok {
		ref = last
	}
	p.fills = append(p.fills, Fill{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Action:    o.Action,
		FillPrice: px,
		FillQty:   o.Qty,
		FilledAt:  now,
		Slippage:  px - ref,
	})
	p.log.Info("paper fill", "order_id", o.ID, "symbol", o.Symbol, "action", o.Action,
		"type", o.Type, "qty", o.Qty, "price", px, "position", pos.Qty)

	p.emit(model.OrderEvent{Kind: model.EventFill, OrderID: o.ID, Symbol: o.Symbol, Action: o.Action,
		Type: o.Type, Price: px, Qty: o.Qty, Commission: commission, RealizedPnL: realized})
	p.emit(model.OrderEvent{Kind: model.EventCommission, OrderID: o.ID, Symbol: o.Symbol,
		Commission: commission, RealizedPnL: realized})

	// bracket children are one-cancels-all
	if o.ParentID != 0 {
		for _, id := range p.sortedIDs() {
			s := p.orders[id]
			if s.ID != o.ID && s.ParentID == o.ParentID && s.Live() {
				p.cancel(s)
			}
		}
	}
}

// emit queues ev; callers hold p.mu.
func (p *PaperBroker) emit(ev model.OrderEvent) {
	ev.TS = p.now()
	p.pending = append(p.pending, ev)
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// TakeEvents drains queued order events in emission order.
func (p *PaperBroker) TakeEvents() []model.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = nil
	return out
}

// Run forwards order events to deliver until ctx is cancelled. deliver may
// block; events are queued without bound in the meantime.
func (p *PaperBroker) Run(ctx context.Context, deliver func(context.Context, model.OrderEvent) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.notify:
			for _, ev := range p.TakeEvents() {
				if err := deliver(ctx, ev); err != nil {
					p.log.Warn("order event not delivered", "order_id", ev.OrderID, "kind", ev.Kind, "error", err)
				}
			}
		}
	}
}

func (p *PaperBroker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(p.orders))
	for id := range p.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
