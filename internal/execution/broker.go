// Package execution places bracket orders at a broker and keeps each
// strategy instance's belief about its exposure reconciled with the
// broker's view of orders and position.
package execution

import (
	"context"
	"errors"
	"log/slog"

	"daytrader/internal/model"
)

var (
	// ErrUnknownOrder is returned when an order id is not known to the broker.
	ErrUnknownOrder = errors.New("execution: unknown order")
	// ErrOrderNotLive is returned when cancelling an order that can no longer trade.
	ErrOrderNotLive = errors.New("execution: order not live")
	// ErrBrokerUnavailable is returned when the broker cannot be reached.
	ErrBrokerUnavailable = errors.New("execution: broker unavailable")
)

// Broker is the outbound port to the venue.
type Broker interface {
	// NextOrderID reserves a fresh order id.
	NextOrderID() int64
	// PlaceOrder submits o. Orders with Transmit unset are held by the
	// broker until a later order of the same bracket is transmitted.
	PlaceOrder(ctx context.Context, o model.Order) error
	// CancelOrder requests cancellation of a live order.
	CancelOrder(ctx context.Context, id int64) error
	// OpenOrders returns live orders for symbol.
	OpenOrders(ctx context.Context, symbol string) ([]model.Order, error)
	// Position returns the signed net position for symbol.
	Position(ctx context.Context, symbol string) (float64, error)
}

// LogSink writes event records to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Record implements model.EventSink.
func (s LogSink) Record(rec model.EventRecord) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	switch rec.Kind {
	case model.RecordLogicError, model.RecordOrderFailure, model.RecordFatal:
		level = slog.LevelError
	case model.RecordWarning, model.RecordRepair:
		level = slog.LevelWarn
	}
	attrs := []any{
		"event", rec.Kind,
		"strategy", rec.Strategy,
		"class", rec.Class,
	}
	if rec.OrderID != 0 {
		attrs = append(attrs, "order_id", rec.OrderID, "action", rec.Action, "order_type", rec.OrderType)
	}
	if rec.Price != 0 || rec.Qty != 0 {
		attrs = append(attrs, "price", rec.Price, "qty", rec.Qty)
	}
	if rec.Commission != 0 || rec.RealizedPnL != 0 {
		attrs = append(attrs, "commission", rec.Commission, "realized_pnl", rec.RealizedPnL)
	}
	l.Log(context.Background(), level, rec.Message, attrs...)
}

// MultiSink fans a record out to several sinks in order.
type MultiSink []model.EventSink

// Record implements model.EventSink.
func (m MultiSink) Record(rec model.EventRecord) {
	for _, s := range m {
		if s != nil {
			s.Record(rec)
		}
	}
}

// SinkFunc adapts a function to model.EventSink.
type SinkFunc func(model.EventRecord)

// Record implements model.EventSink.
func (f SinkFunc) Record(rec model.EventRecord) { f(rec) }
