// Package feed delivers ticks into the event loop, either from a live
// WebSocket tick server or by replaying a recorded tick file.
//
// The WebSocket wire format is one JSON object per message, identical to
// model.Tick:
//
//	{"symbol":"SPY","price":512.34,"qty":100,"ts":"2026-03-02T15:04:05.123Z"}
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"daytrader/internal/events"
	"daytrader/internal/model"
)

// Poster is the part of the dispatcher the feed writes to.
type Poster interface {
	Post(ctx context.Context, ev events.Event) error
	TryPost(ev events.Event) bool
}

// Config holds configuration for the WebSocket feed.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client reads ticks from a WebSocket server and posts them, plus
// connection state changes, to the event loop. Ticks are posted without
// blocking and dropped when the loop is behind; connection changes are
// always delivered.
type Client struct {
	cfg Config

	// Optional hooks.
	OnReconnect func()
	OnConnected func(up bool)
}

// New creates a Client. Returns an error if the URL is unparseable.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

// Run connects and streams ticks into out until ctx is cancelled,
// reconnecting with exponential backoff.
func (c *Client) Run(ctx context.Context, out Poster) error {
	delay := c.cfg.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := c.runOnce(ctx, out)
		if err == nil {
			return nil
		}
		if connected {
			delay = c.cfg.ReconnectDelay
			c.setConnected(ctx, out, false)
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes one connection and reads until disconnect or ctx ends.
// connected reports whether the dial succeeded.
func (c *Client) runOnce(ctx context.Context, out Poster) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", c.cfg.URL)
	c.setConnected(ctx, out, true)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			default:
			}
			return true, err
		}

		var t model.Tick
		if err := json.Unmarshal(raw, &t); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if t.Symbol == "" || t.Price <= 0 {
			log.Printf("[feed] skipping invalid tick: %s", raw)
			continue
		}
		if t.TS.IsZero() {
			t.TS = time.Now().UTC()
		}
		out.TryPost(events.Event{Kind: events.KindTick, Tick: t})
	}
}

func (c *Client) setConnected(ctx context.Context, out Poster, up bool) {
	if c.OnConnected != nil {
		c.OnConnected(up)
	}
	if err := out.Post(ctx, events.Event{Kind: events.KindConnection, Connected: up}); err != nil {
		log.Printf("[feed] connection event not delivered: %v", err)
	}
}
