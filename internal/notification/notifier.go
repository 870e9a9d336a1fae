// Package notification delivers alerts about strategy faults and exposure
// resets to external channels.
package notification

import (
	"context"
	"log/slog"
	"time"
)

// AlertLevel is the severity of an alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one record that needs a human.
type Alert struct {
	Level    AlertLevel `json:"level"`
	Kind     string     `json:"kind"`
	Strategy string     `json:"strategy"`
	Class    string     `json:"class,omitempty"`
	OrderID  int64      `json:"order_id,omitempty"`
	Message  string     `json:"message"`
	TS       time.Time  `json:"ts"`
}

// Title is a one-line summary, e.g. "REPAIR spy-1".
func (a Alert) Title() string {
	if a.Strategy == "" {
		return a.Kind
	}
	return a.Kind + " " + a.Strategy
}

// Notifier delivers alerts to one channel.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log at a level matching
// their severity.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a notifier on the default logger.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: slog.Default().With("component", "alert")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelWarn
	if alert.Level == AlertCritical {
		level = slog.LevelError
	}
	n.log.Log(ctx, level, alert.Title(),
		"strategy", alert.Strategy, "order_id", alert.OrderID, "message", alert.Message)
	return nil
}
