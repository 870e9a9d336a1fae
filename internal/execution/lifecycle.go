package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"daytrader/internal/model"
)

// State is a strategy instance's belief about its exposure.
type State int

const (
	// Closed means no live orders and no position.
	Closed State = iota
	// PendingOpen means the entry is working but has not filled.
	PendingOpen
	// Open means the entry has filled and the exits are working.
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case PendingOpen:
		return "pending_open"
	case Open:
		return "open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ForeignPolicy decides how orders and position on the contract that this
// lifecycle did not place are treated during reconciliation.
type ForeignPolicy string

const (
	// PolicyFlatten treats any foreign exposure as a fault to be repaired
	// by cancelling every order on the contract and flattening.
	PolicyFlatten ForeignPolicy = "flatten"
	// PolicyIgnore only considers this lifecycle's own orders and fills,
	// warning once about foreign exposure.
	PolicyIgnore ForeignPolicy = "ignore"
)

// ParseForeignPolicy maps a config string to a ForeignPolicy.
func ParseForeignPolicy(s string) (ForeignPolicy, error) {
	switch ForeignPolicy(s) {
	case "", PolicyFlatten:
		return PolicyFlatten, nil
	case PolicyIgnore:
		return PolicyIgnore, nil
	}
	return "", fmt.Errorf("execution: unknown foreign policy %q", s)
}

// LifecycleConfig configures a Lifecycle.
type LifecycleConfig struct {
	Strategy string
	Class    string
	Symbol   string
	Qty      float64
	Bracket  BracketType
	Policy   ForeignPolicy
}

type trackedOrder struct {
	order  model.Order
	filled float64
	live   bool
}

// Lifecycle owns one strategy instance's orders. It is not safe for
// concurrent use; all calls come from the event loop.
type Lifecycle struct {
	cfg    LifecycleConfig
	broker Broker
	sink   model.EventSink
	log    *slog.Logger
	now    func() time.Time

	state       State
	owned       map[int64]bool
	tracked     map[int64]*trackedOrder
	settled     map[int64]bool
	cancelReq   map[int64]bool
	badIDs      map[int64]bool
	flattenID   int64
	position    float64
	incomplete  bool
	repairing   bool
	lastForeign string
}

// NewLifecycle creates a closed lifecycle.
func NewLifecycle(cfg LifecycleConfig, broker Broker, sink model.EventSink) *Lifecycle {
	if cfg.Bracket == "" {
		cfg.Bracket = BracketBasic
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyFlatten
	}
	if sink == nil {
		sink = SinkFunc(func(model.EventRecord) {})
	}
	return &Lifecycle{
		cfg:       cfg,
		broker:    broker,
		sink:      sink,
		log:       slog.Default().With("component", "lifecycle", "strategy", cfg.Strategy),
		now:       time.Now,
		owned:     make(map[int64]bool),
		tracked:   make(map[int64]*trackedOrder),
		settled:   make(map[int64]bool),
		cancelReq: make(map[int64]bool),
		badIDs:    make(map[int64]bool),
	}
}

// State returns the current belief.
func (l *Lifecycle) State() State { return l.state }

// IsOpen reports whether the lifecycle believes it has exposure.
func (l *Lifecycle) IsOpen() bool { return l.state != Closed }

// Repairing reports whether an exposure reset is in progress.
func (l *Lifecycle) Repairing() bool { return l.repairing }

// Position returns the net position built from this lifecycle's fills.
func (l *Lifecycle) Position() float64 { return l.position }

// Owns reports whether id was placed by this lifecycle.
func (l *Lifecycle) Owns(id int64) bool { return l.owned[id] }

// Tracked returns the ids of the currently tracked orders, ascending.
func (l *Lifecycle) Tracked() []int64 {
	ids := make([]int64, 0, len(l.tracked))
	for id := range l.tracked {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Flat reports whether the lifecycle is closed with nothing working.
func (l *Lifecycle) Flat() bool {
	return l.state == Closed && !l.repairing && l.position == 0 && l.liveTracked() == 0
}

// SubmitEntry places a bracket in the direction given by long. Orders are
// placed in sequence and each one that the broker accepts is tracked. The
// first rejection stops placement, is recorded, and leaves the set
// incomplete so the next CalibrateStatus repairs it.
func (l *Lifecycle) SubmitEntry(ctx context.Context, long bool, prices BracketPrices) bool {
	if l.state != Closed || l.repairing {
		l.record(model.EventRecord{Kind: model.RecordLogicError,
			Message: fmt.Sprintf("entry requested while %s", l.state)})
		return false
	}
	set, err := BuildBracket(l.cfg.Bracket, l.broker.NextOrderID, l.cfg.Symbol, long, l.cfg.Qty, prices)
	if err != nil {
		l.record(model.EventRecord{Kind: model.RecordOrderFailure, Message: err.Error()})
		return false
	}

	l.clearTracked()
	for i, o := range set.Orders() {
		if err := l.broker.PlaceOrder(ctx, o); err != nil {
			l.record(model.EventRecord{
				Kind:      model.RecordOrderFailure,
				OrderID:   o.ID,
				Action:    o.Action,
				OrderType: o.Type,
				Price:     orderPrice(o),
				Qty:       o.Qty,
				Message:   fmt.Sprintf("Order Failure: %s %s: %v", o.Role, o.Type, err),
			})
			if i > 0 {
				l.incomplete = true
			}
			return false
		}
		l.owned[o.ID] = true
		l.tracked[o.ID] = &trackedOrder{order: o, live: true}
		l.record(model.EventRecord{
			Kind:      model.RecordOrderPlaced,
			OrderID:   o.ID,
			Action:    o.Action,
			OrderType: o.Type,
			Price:     orderPrice(o),
			Qty:       o.Qty,
			Message:   string(o.Role),
		})
		if i == 0 {
			l.setOpen(true)
		}
	}
	l.log.InfoContext(ctx, "bracket submitted",
		"bracket", l.cfg.Bracket, "long", long, "entry_id", set.Entry.ID)
	return true
}

// SubmitExit cancels this lifecycle's working orders and flattens any
// residual position. Progress is checked on each CalibrateStatus until the
// broker reports nothing left.
func (l *Lifecycle) SubmitExit(ctx context.Context, reason string) {
	if l.Flat() {
		return
	}
	if !l.repairing {
		l.record(model.EventRecord{Kind: model.RecordRepair, Message: "exit: " + reason})
		l.repairing = true
	}
	orders, pos, ok := l.query(ctx)
	if !ok {
		return
	}
	orders, pos, _ = l.consider(orders, pos)
	l.continueRepair(ctx, orders, pos)
}

// CalibrateStatus compares the believed state with the broker's orders and
// position and corrects any disagreement. Calling it again without new
// broker activity issues no further broker actions.
func (l *Lifecycle) CalibrateStatus(ctx context.Context) {
	orders, brokerPos, ok := l.query(ctx)
	if !ok {
		return
	}
	orders, pos, foreign := l.consider(orders, brokerPos)

	if l.repairing {
		l.continueRepair(ctx, orders, pos)
		return
	}

	brokerOpen := pos != 0 || len(l.active(orders)) > 0
	localOpen := l.state != Closed
	switch {
	case localOpen && !brokerOpen:
		l.settle(pos)
		l.setOpen(false)
	case !localOpen && brokerOpen:
		if foreign == 0 && !l.incomplete && l.liveTracked() > 0 && l.allTracked(orders) {
			l.setOpen(true)
			return
		}
		l.repair(ctx, "broker has exposure while closed", orders, pos)
	case localOpen && brokerOpen:
		switch {
		case foreign > 0:
			l.repair(ctx, fmt.Sprintf("%d foreign orders on %s", foreign, l.cfg.Symbol), orders, pos)
		case l.incomplete:
			l.repair(ctx, "incomplete bracket", orders, pos)
		case !l.matchesTracked(orders, brokerPos):
			l.repair(ctx, "broker orders differ from tracked bracket", orders, pos)
		case l.state == PendingOpen && pos != 0 && l.position != 0:
			l.transition(Open)
		}
	}
}

// OnOrderEvent applies a broker event. It returns false when the order was
// not placed by this lifecycle.
func (l *Lifecycle) OnOrderEvent(ctx context.Context, ev model.OrderEvent) bool {
	if !l.owned[ev.OrderID] {
		return false
	}
	t := l.tracked[ev.OrderID]
	switch ev.Kind {
	case model.EventNew:
		l.record(model.EventRecord{Kind: model.RecordOrderNew, OrderID: ev.OrderID, Action: ev.Action,
			OrderType: ev.Type, Qty: ev.Qty, Message: "New Order"})
		if t == nil && !l.settled[ev.OrderID] {
			l.record(model.EventRecord{Kind: model.RecordLogicError, OrderID: ev.OrderID,
				Message: fmt.Sprintf("new order %d is not tracked", ev.OrderID)})
		}

	case model.EventFill:
		signed := ev.Qty
		if ev.Action == model.ActionSell {
			signed = -ev.Qty
		}
		l.record(model.EventRecord{Kind: model.RecordOrderFilled, OrderID: ev.OrderID, Action: ev.Action,
			OrderType: ev.Type, Price: ev.Price, Qty: ev.Qty, Commission: ev.Commission,
			RealizedPnL: ev.RealizedPnL, Message: "Order Filled"})
		if t == nil {
			switch {
			case !l.settled[ev.OrderID]:
				l.position += signed
				l.record(model.EventRecord{Kind: model.RecordLogicError, OrderID: ev.OrderID,
					Message: fmt.Sprintf("filled order %d is not tracked", ev.OrderID)})
			case l.cfg.Policy == PolicyIgnore:
				// own fills are the only position source under this policy
				l.position += signed
			}
			return true
		}
		l.position += signed
		t.filled += ev.Qty
		if t.filled >= t.order.Qty {
			t.live = false
		}
		l.onFill(ctx, t)

	case model.EventCancel, model.EventCancelled:
		l.record(model.EventRecord{Kind: model.RecordOrderCanceled, OrderID: ev.OrderID, Action: ev.Action,
			OrderType: ev.Type, Qty: ev.Qty, Message: "Order Cancelled"})
		if t == nil || !t.live {
			return true
		}
		t.live = false
		role := t.order.Role
		if !l.cancelReq[ev.OrderID] && role != model.RoleTakeProfit && role != model.RoleStopLoss {
			l.record(model.EventRecord{Kind: model.RecordLogicError, OrderID: ev.OrderID,
				Message: fmt.Sprintf("%s order %d cancelled unexpectedly", role, ev.OrderID)})
		}

	case model.EventCommission:
		l.record(model.EventRecord{Kind: model.RecordCommission, OrderID: ev.OrderID,
			Commission: ev.Commission, RealizedPnL: ev.RealizedPnL, Message: "Commission Report"})

	case model.EventError:
		l.record(model.EventRecord{Kind: model.RecordOrderFailure, OrderID: ev.OrderID,
			Message: fmt.Sprintf("broker error %d: %s", ev.Code, ev.Message)})
	}
	return true
}

func (l *Lifecycle) onFill(ctx context.Context, t *trackedOrder) {
	switch t.order.Role {
	case model.RoleEntry:
		if l.state == PendingOpen {
			l.transition(Open)
		}
	case model.RoleTakeProfit, model.RoleStopLoss:
		if t.live {
			return
		}
		for _, id := range l.Tracked() {
			s := l.tracked[id]
			if s.live && s.order.ParentID == t.order.ParentID && id != t.order.ID {
				l.requestCancel(ctx, id)
			}
		}
		if l.state != Closed && !l.repairing {
			l.setOpen(false)
		}
	}
}

// setOpen changes the open/closed belief, checking it against what the
// tracked orders and fills imply.
func (l *Lifecycle) setOpen(want bool) {
	now := l.state != Closed
	if want == now {
		l.record(model.EventRecord{Kind: model.RecordLogicError,
			Message: fmt.Sprintf("double setting open state to %v", want)})
		return
	}
	if l.localTruth() == now {
		l.record(model.EventRecord{Kind: model.RecordWarning,
			Message: fmt.Sprintf("setting open state to %v does not align with broker truth", want)})
	}
	next := Closed
	if want {
		next = PendingOpen
		if l.position != 0 {
			next = Open
		}
	}
	l.transition(next)
}

func (l *Lifecycle) transition(next State) {
	prev := l.state
	l.state = next
	l.record(model.EventRecord{Kind: model.RecordStateChange,
		Message: fmt.Sprintf("%s -> %s", prev, next)})
}

func (l *Lifecycle) localTruth() bool {
	if l.position != 0 {
		return true
	}
	for id, t := range l.tracked {
		if t.live && !l.cancelReq[id] {
			return true
		}
	}
	return false
}

func (l *Lifecycle) query(ctx context.Context) ([]model.Order, float64, bool) {
	orders, err := l.broker.OpenOrders(ctx, l.cfg.Symbol)
	if err != nil {
		l.record(model.EventRecord{Kind: model.RecordWarning, Message: fmt.Sprintf("calibrate: open orders: %v", err)})
		return nil, 0, false
	}
	pos, err := l.broker.Position(ctx, l.cfg.Symbol)
	if err != nil {
		l.record(model.EventRecord{Kind: model.RecordWarning, Message: fmt.Sprintf("calibrate: position: %v", err)})
		return nil, 0, false
	}
	return orders, pos, true
}

// consider applies the foreign policy, returning the orders and position
// to reconcile against and the number of foreign orders in them.
func (l *Lifecycle) consider(orders []model.Order, pos float64) ([]model.Order, float64, int) {
	var own []model.Order
	var foreignIDs []string
	for _, o := range orders {
		if l.owned[o.ID] {
			own = append(own, o)
		} else {
			foreignIDs = append(foreignIDs, fmt.Sprint(o.ID))
		}
	}
	if l.cfg.Policy == PolicyFlatten {
		return orders, pos, len(foreignIDs)
	}
	if pos != l.position {
		foreignIDs = append(foreignIDs, fmt.Sprintf("position %v", pos-l.position))
	}
	if sig := strings.Join(foreignIDs, ","); sig != "" && sig != l.lastForeign {
		l.record(model.EventRecord{Kind: model.RecordWarning,
			Message: fmt.Sprintf("ignoring foreign exposure on %s: %s", l.cfg.Symbol, sig)})
		l.lastForeign = sig
	}
	return own, l.position, 0
}

func (l *Lifecycle) active(orders []model.Order) []model.Order {
	var out []model.Order
	for _, o := range orders {
		if !l.cancelReq[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

// allTracked reports whether every live order at the broker is tracked.
func (l *Lifecycle) allTracked(orders []model.Order) bool {
	for _, o := range orders {
		if t, ok := l.tracked[o.ID]; !ok || !t.live {
			return false
		}
	}
	return true
}

// matchesTracked reports whether the broker's working orders are exactly
// the tracked live ones. A tracked order missing at the broker is accepted
// only while brokerPos already includes its unfilled quantity, meaning its
// fill event has not been delivered yet.
func (l *Lifecycle) matchesTracked(orders []model.Order, brokerPos float64) bool {
	atBroker := make(map[int64]bool)
	for _, o := range l.active(orders) {
		atBroker[o.ID] = true
	}
	n, missing := 0, false
	inFlight := 0.0
	for id, t := range l.tracked {
		if !t.live || l.cancelReq[id] {
			continue
		}
		if atBroker[id] {
			n++
			continue
		}
		missing = true
		rem := t.order.Qty - t.filled
		if t.order.Action == model.ActionSell {
			rem = -rem
		}
		inFlight += rem
	}
	if n != len(atBroker) {
		return false
	}
	return !missing || brokerPos == l.position+inFlight
}

func (l *Lifecycle) liveTracked() int {
	n := 0
	for _, t := range l.tracked {
		if t.live {
			n++
		}
	}
	return n
}

func (l *Lifecycle) repair(ctx context.Context, reason string, orders []model.Order, pos float64) {
	l.record(model.EventRecord{Kind: model.RecordRepair, Message: "resetting exposure: " + reason})
	l.log.WarnContext(ctx, "repairing exposure",
		"reason", reason, "open_orders", len(orders), "position", pos)
	l.repairing = true
	l.continueRepair(ctx, orders, pos)
}

// continueRepair issues only the actions not already in flight, then
// finishes the repair if the broker is already flat.
func (l *Lifecycle) continueRepair(ctx context.Context, orders []model.Order, pos float64) {
	if pos == 0 && len(l.active(orders)) == 0 {
		l.finishRepair()
		return
	}
	acted := false
	for _, o := range orders {
		if l.cancelReq[o.ID] || l.badIDs[o.ID] || o.ID == l.flattenID {
			continue
		}
		l.requestCancel(ctx, o.ID)
		acted = true
	}
	if pos != 0 && !l.flattenLive() {
		l.placeFlatten(ctx, pos)
		acted = true
	}
	if !acted {
		return
	}
	orders, pos, ok := l.query(ctx)
	if !ok {
		return
	}
	orders, pos, _ = l.consider(orders, pos)
	if pos == 0 && len(l.active(orders)) == 0 {
		l.finishRepair()
	}
}

func (l *Lifecycle) finishRepair() {
	l.repairing = false
	l.settle(0)
	if l.state != Closed {
		l.setOpen(false)
	}
	l.record(model.EventRecord{Kind: model.RecordRepair, Message: "exposure reset complete"})
}

func (l *Lifecycle) requestCancel(ctx context.Context, id int64) {
	err := l.broker.CancelOrder(ctx, id)
	if errors.Is(err, ErrOrderNotLive) {
		// already done at the broker; its event is on the way
		l.cancelReq[id] = true
		return
	}
	if err != nil {
		l.badIDs[id] = true
		l.record(model.EventRecord{Kind: model.RecordOrderFailure, OrderID: id,
			Message: fmt.Sprintf("cancel failed: %v", err)})
		return
	}
	l.cancelReq[id] = true
}

func (l *Lifecycle) flattenLive() bool {
	if l.flattenID == 0 {
		return false
	}
	t, ok := l.tracked[l.flattenID]
	return ok && t.live
}

func (l *Lifecycle) placeFlatten(ctx context.Context, pos float64) {
	action := model.ActionSell
	if pos < 0 {
		action = model.ActionBuy
		pos = -pos
	}
	o := model.Order{
		ID:       l.broker.NextOrderID(),
		Symbol:   l.cfg.Symbol,
		Role:     model.RoleFlatten,
		Action:   action,
		Type:     model.OrderMarket,
		Qty:      pos,
		Transmit: true,
		Status:   model.StatusPending,
	}
	if err := l.broker.PlaceOrder(ctx, o); err != nil {
		l.record(model.EventRecord{Kind: model.RecordOrderFailure, Action: action, OrderType: o.Type,
			Qty: o.Qty, Message: fmt.Sprintf("Order Failure: flatten: %v", err)})
		return
	}
	l.owned[o.ID] = true
	l.tracked[o.ID] = &trackedOrder{order: o, live: true}
	l.flattenID = o.ID
	l.record(model.EventRecord{Kind: model.RecordOrderPlaced, OrderID: o.ID, Action: action,
		OrderType: o.Type, Qty: o.Qty, Message: string(o.Role)})
}

// settle forgets the tracked orders once the broker reports nothing
// working. Events still in flight for them no longer change the position
// under PolicyFlatten, where pos from the broker is authoritative.
func (l *Lifecycle) settle(pos float64) {
	for id := range l.tracked {
		l.settled[id] = true
	}
	if l.cfg.Policy == PolicyFlatten {
		l.position = pos
	}
	l.clearTracked()
}

func (l *Lifecycle) clearTracked() {
	l.tracked = make(map[int64]*trackedOrder)
	l.cancelReq = make(map[int64]bool)
	l.badIDs = make(map[int64]bool)
	l.flattenID = 0
	l.incomplete = false
}

func (l *Lifecycle) record(rec model.EventRecord) {
	rec.TS = l.now()
	rec.Strategy = l.cfg.Strategy
	rec.Class = l.cfg.Class
	l.sink.Record(rec)
}

func orderPrice(o model.Order) float64 {
	switch o.Type {
	case model.OrderLimit:
		return o.LimitPrice
	case model.OrderStop:
		return o.StopPrice
	}
	if o.Condition != nil {
		return o.Condition.Price
	}
	return 0
}
