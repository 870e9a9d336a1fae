package model

import (
	"encoding/json"
	"time"
)

// Event-log record kinds.
const (
	RecordStrategyStart = "STRATEGY_START"
	RecordStrategyStop  = "STRATEGY_STOP"
	RecordNewBar        = "NEW_BAR"
	RecordSignal        = "SIGNAL"
	RecordFlagCheck     = "FLAG_CHECK"
	RecordStateChange   = "STATE_CHANGE"
	RecordOrderPlaced   = "ORDER_PLACED"
	RecordOrderNew      = "ORDER_NEW"
	RecordOrderFilled   = "ORDER_FILLED"
	RecordOrderCanceled = "ORDER_CANCELLED"
	RecordCommission    = "COMMISSION"
	RecordOrderFailure  = "ORDER_FAILURE"
	RecordLogicError    = "LOGIC_ERROR"
	RecordWarning       = "WARNING"
	RecordRepair        = "REPAIR"
	RecordFatal         = "FATAL"
	RecordMoveStats     = "MOVE_STATS"
)

// EventRecord is one append-only row of a strategy's event log.
type EventRecord struct {
	TS          time.Time `json:"ts"`
	Kind        string    `json:"event"`
	Strategy    string    `json:"strategy"`
	Class       string    `json:"class"`
	OrderID     int64     `json:"order_id,omitempty"`
	Action      string    `json:"action,omitempty"`
	OrderType   string    `json:"order_type,omitempty"`
	Price       float64   `json:"price,omitempty"`
	Qty         float64   `json:"qty,omitempty"`
	Commission  float64   `json:"commission,omitempty"`
	RealizedPnL float64   `json:"realized_pnl,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// JSON returns the JSON-encoded record.
func (r *EventRecord) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
