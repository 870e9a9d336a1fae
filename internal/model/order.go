package model

import "time"

// Order actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Order types.
const (
	OrderMarket = "MKT"
	OrderLimit  = "LMT"
	OrderStop   = "STP"
	OrderTrail  = "TRAIL"
)

// OrderRole identifies an order's place in a bracket.
type OrderRole string

const (
	RoleEntry      OrderRole = "entry"
	RoleTakeProfit OrderRole = "take_profit"
	RoleStopLoss   OrderRole = "stop_loss"
	RoleFlatten    OrderRole = "flatten"
)

// Order statuses.
const (
	StatusPending   = "PENDING"
	StatusSubmitted = "SUBMITTED"
	StatusFilled    = "FILLED"
	StatusCancelled = "CANCELLED"
	StatusRejected  = "REJECTED"
)

// PriceCondition makes an order active only once the last price crosses
// Price: above when IsMore, below otherwise.
type PriceCondition struct {
	Price  float64 `json:"price"`
	IsMore bool    `json:"is_more"`
}

// Met reports whether last satisfies the condition.
func (c *PriceCondition) Met(last float64) bool {
	if c.IsMore {
		return last >= c.Price
	}
	return last <= c.Price
}

// Order is a broker order. Children of a bracket carry the entry's ID in
// ParentID. Only the last order of a bracket has Transmit set.
type Order struct {
	ID          int64           `json:"id"`
	ParentID    int64           `json:"parent_id,omitempty"`
	Symbol      string          `json:"symbol"`
	Role        OrderRole       `json:"role"`
	Action      string          `json:"action"`
	Type        string          `json:"type"`
	Qty         float64         `json:"qty"`
	LimitPrice  float64         `json:"limit_price,omitempty"`
	StopPrice   float64         `json:"stop_price,omitempty"`
	TrailAmount float64         `json:"trail_amount,omitempty"`
	Condition   *PriceCondition `json:"condition,omitempty"`
	Transmit    bool            `json:"transmit"`
	Status      string          `json:"status"`
	FilledQty   float64         `json:"filled_qty"`
	AvgPrice    float64         `json:"avg_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Live reports whether the order can still trade.
func (o *Order) Live() bool {
	return o.Status == StatusPending || o.Status == StatusSubmitted
}

// Opposite returns the closing action for action.
func Opposite(action string) string {
	if action == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// OrderEventKind enumerates broker notifications about an order.
type OrderEventKind string

const (
	EventNew        OrderEventKind = "new"
	EventFill       OrderEventKind = "fill"
	EventCancel     OrderEventKind = "cancel"
	EventCancelled  OrderEventKind = "cancelled"
	EventCommission OrderEventKind = "commissionReport"
	EventError      OrderEventKind = "error"
)

// OrderEvent is a broker notification for one order.
type OrderEvent struct {
	Kind        OrderEventKind `json:"kind"`
	OrderID     int64          `json:"order_id"`
	Symbol      string         `json:"symbol"`
	Action      string         `json:"action,omitempty"`
	Type        string         `json:"type,omitempty"`
	Price       float64        `json:"price,omitempty"`
	Qty         float64        `json:"qty,omitempty"`
	Commission  float64        `json:"commission,omitempty"`
	RealizedPnL float64        `json:"realized_pnl,omitempty"`
	Code        int            `json:"code,omitempty"`
	Message     string         `json:"message,omitempty"`
	TS          time.Time      `json:"ts"`
}
