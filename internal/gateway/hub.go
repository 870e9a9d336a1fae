// Package gateway streams strategy event records to WebSocket clients.
//
// Each message is an envelope:
//
//	{"seq":42,"ts":"...","strategy":"spy-1","record":{...}}
//
// Clients connect to the hub's handler, optionally with ?strategy=name to
// filter and ?since=seq to replay retained records they missed.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"daytrader/internal/model"
)

type envelope struct {
	Seq      int64             `json:"seq"`
	TS       time.Time         `json:"ts"`
	Strategy string            `json:"strategy"`
	Record   model.EventRecord `json:"record"`
}

// Hub fans event records out to connected WebSocket clients. Record never
// blocks the caller: records are queued and encoded on the Run goroutine,
// and a client whose send buffer is full misses the record.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	seq     int64
	hist    *history
	queue   chan model.EventRecord
	now     func() time.Time

	upgrader websocket.Upgrader

	// OnDrop is called when the queue is full and a record is discarded.
	OnDrop func()
}

// NewHub creates a hub that retains the last historySize envelopes.
func NewHub(queueSize, historySize int) *Hub {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Hub{
		clients: make(map[*client]bool),
		hist:    newHistory(historySize),
		queue:   make(chan model.EventRecord, queueSize),
		now:     time.Now,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Record implements model.EventSink.
func (h *Hub) Record(rec model.EventRecord) {
	select {
	case h.queue <- rec:
	default:
		if h.OnDrop != nil {
			h.OnDrop()
		}
	}
}

// Run encodes and broadcasts queued records until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case rec := <-h.queue:
			h.broadcast(rec)
		}
	}
}

func (h *Hub) broadcast(rec model.EventRecord) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	data, err := json.Marshal(envelope{Seq: seq, TS: h.now().UTC(), Strategy: rec.Strategy, Record: rec})
	if err != nil {
		log.Printf("[gateway] encode error: %v", err)
		return
	}
	e := entry{Seq: seq, Strategy: rec.Strategy, Data: data}
	h.hist.push(e)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.wants(e.Strategy) {
			select {
			case c.send <- data:
			default: // slow client
			}
		}
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade error: %v", err)
		return
	}
	c := &client{
		conn:     conn,
		send:     make(chan []byte, 256),
		hub:      h,
		strategy: r.URL.Query().Get("strategy"),
	}

	// Replay before registering so live records follow the backlog.
	if s := r.URL.Query().Get("since"); s != "" {
		if since, err := strconv.ParseInt(s, 10, 64); err == nil {
			for _, e := range h.hist.since(since) {
				if !c.wants(e.Strategy) {
					continue
				}
				select {
				case c.send <- e.Data:
				default:
				}
			}
		}
	}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] ws client connected (%d total)", count)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last broadcast record.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}
