package notification

import (
	"context"
	"log/slog"

	"daytrader/internal/model"
)

// Alerter turns event-log records that need a human into alerts. Record
// never blocks: alerts are queued and dropped when the queue is full.
type Alerter struct {
	notifiers []Notifier
	queue     chan Alert
	log       *slog.Logger
}

// NewAlerter creates an alerter delivering to every notifier.
func NewAlerter(queueSize int, notifiers ...Notifier) *Alerter {
	return &Alerter{
		notifiers: notifiers,
		queue:     make(chan Alert, queueSize),
		log:       slog.Default().With("component", "alerter"),
	}
}

// AlertFor maps a record to an alert. ok is false for records that do not
// alert.
func AlertFor(rec model.EventRecord) (a Alert, ok bool) {
	switch rec.Kind {
	case model.RecordLogicError, model.RecordFatal:
		a.Level = AlertCritical
	case model.RecordOrderFailure, model.RecordRepair:
		a.Level = AlertWarning
	default:
		return Alert{}, false
	}
	a.Kind = rec.Kind
	a.Strategy = rec.Strategy
	a.Class = rec.Class
	a.OrderID = rec.OrderID
	a.Message = rec.Message
	a.TS = rec.TS
	return a, true
}

// Record implements model.EventSink.
func (a *Alerter) Record(rec model.EventRecord) {
	alert, ok := AlertFor(rec)
	if !ok {
		return
	}
	select {
	case a.queue <- alert:
	default:
		a.log.Warn("alert queue full, dropping alert", "alert", alert.Title())
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-a.queue:
			for _, n := range a.notifiers {
				if err := n.Send(ctx, alert); err != nil {
					a.log.Warn("alert not delivered", "alert", alert.Title(), "error", err)
				}
			}
		}
	}
}
