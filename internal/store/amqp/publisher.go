// Package amqp publishes strategy event-log records to a RabbitMQ topic
// exchange so that other services can follow fills, faults and repairs.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"daytrader/internal/model"
)

// Publisher forwards event records to an exchange. Record never blocks;
// records are queued and dropped when the queue is full.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    chan model.EventRecord
	log      *slog.Logger

	// OnPublish is called with "ok", "error" or "dropped" per record.
	OnPublish func(result string)
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url, exchange string, queueSize int) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", exchange, err)
	}

	p := newPublisher(exchange, queueSize)
	p.conn, p.channel = conn, ch
	p.log.Info("publisher connected", "exchange", exchange)
	return p, nil
}

func newPublisher(exchange string, queueSize int) *Publisher {
	return &Publisher{
		exchange: exchange,
		queue:    make(chan model.EventRecord, queueSize),
		log:      slog.Default().With("component", "amqp"),
	}
}

// RoutingKey is "<event>.<strategy>" in lower case, e.g.
// "order_filled.spy-1". Dots in the strategy name become underscores.
func RoutingKey(rec model.EventRecord) string {
	strategy := strings.ReplaceAll(rec.Strategy, ".", "_")
	if strategy == "" {
		strategy = "none"
	}
	return strings.ToLower(rec.Kind) + "." + strategy
}

// Record implements model.EventSink.
func (p *Publisher) Record(rec model.EventRecord) {
	select {
	case p.queue <- rec:
	default:
		p.result("dropped")
	}
}

// Run publishes queued records until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-p.queue:
			if err := p.publish(ctx, rec); err != nil {
				p.log.Warn("event not published", "event", rec.Kind, "strategy", rec.Strategy, "error", err)
				p.result("error")
				continue
			}
			p.result("ok")
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec model.EventRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(rec),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    rec.TS,
			Type:         rec.Kind,
			Body:         rec.JSON(),
		},
	)
}

func (p *Publisher) result(r string) {
	if p.OnPublish != nil {
		p.OnPublish(r)
	}
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
