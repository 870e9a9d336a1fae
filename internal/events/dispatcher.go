// Package events is the single-threaded event loop that drives the trading
// core. Collaborators running on their own goroutines Post events into one
// queue; Run dispatches them to registered handlers in arrival order, each
// handler running to completion before the next event is taken.
package events

import (
	"context"
	"log/slog"
	"sync"

	"daytrader/internal/model"
)

// Kind selects the handlers an Event is delivered to.
type Kind int

const (
	KindTick Kind = iota
	KindBarClosed
	KindOrder
	KindConnection
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindTick:
		return "tick"
	case KindBarClosed:
		return "bar_closed"
	case KindOrder:
		return "order"
	case KindConnection:
		return "connection"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Event is the union of everything the loop carries. Only the field
// matching Kind is meaningful.
type Event struct {
	Kind      Kind
	Tick      model.Tick
	Bar       model.Candle
	Smooth    model.Candle
	Order     model.OrderEvent
	Connected bool
	Call      func() // KindControl: runs on the loop goroutine
}

// Handler processes one event.
type Handler func(Event)

type entry struct {
	id        uint64
	fn        Handler
	cancelled bool
}

// Handle cancels a registration. Cancel is idempotent.
type Handle struct {
	d    *Dispatcher
	kind Kind
	e    *entry
}

// Cancel removes the handler. An event being dispatched when Cancel is
// called is not delivered to the handler if it has not reached it yet.
func (h *Handle) Cancel() {
	if h == nil || h.d == nil {
		return
	}
	h.d.remove(h.kind, h.e)
}

// Dispatcher owns the handler table and the inbound queue.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[Kind][]*entry
	nextID   uint64
	queue    chan Event

	// OnDrop is called when TryPost finds the queue full.
	OnDrop func(kind Kind)
}

// New creates a dispatcher with the given queue capacity.
func New(queueSize int) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Kind][]*entry),
		queue:    make(chan Event, queueSize),
	}
}

// Register adds fn for kind. Handlers run in registration order.
func (d *Dispatcher) Register(kind Kind, fn Handler) *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	e := &entry{id: d.nextID, fn: fn}
	d.handlers[kind] = append(d.handlers[kind], e)
	return &Handle{d: d, kind: kind, e: e}
}

func (d *Dispatcher) remove(kind Kind, e *entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e.cancelled {
		return
	}
	e.cancelled = true
	hs := d.handlers[kind]
	for i, x := range hs {
		if x == e {
			d.handlers[kind] = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
}

// Handlers returns the number of live handlers for kind.
func (d *Dispatcher) Handlers(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers[kind])
}

// Dispatch delivers ev synchronously on the caller's goroutine. It must
// only be called from the loop goroutine (or before Run starts). Nested
// calls from inside a handler are allowed.
func (d *Dispatcher) Dispatch(ev Event) {
	if ev.Kind == KindControl {
		if ev.Call != nil {
			ev.Call()
		}
		return
	}
	d.mu.Lock()
	snapshot := make([]*entry, len(d.handlers[ev.Kind]))
	copy(snapshot, d.handlers[ev.Kind])
	d.mu.Unlock()

	for _, e := range snapshot {
		d.mu.Lock()
		skip := e.cancelled
		d.mu.Unlock()
		if skip {
			continue
		}
		e.fn(ev)
	}
}

// Post queues ev, blocking until there is room or ctx ends.
func (d *Dispatcher) Post(ctx context.Context, ev Event) error {
	select {
	case d.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPost queues ev without blocking and reports whether it was queued.
func (d *Dispatcher) TryPost(ev Event) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		if d.OnDrop != nil {
			d.OnDrop(ev.Kind)
		} else {
			slog.Warn("event queue full, dropping event", "kind", ev.Kind.String())
		}
		return false
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	ev := Event{Kind: KindControl, Call: func() {
		defer close(done)
		fn()
	}}
	if err := d.Post(ctx, ev); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call runs fn on the loop goroutine and returns its result. If ctx ends
// first the result is discarded; fn may still run later but never writes
// to the caller's variables.
func Call[T any](ctx context.Context, d *Dispatcher, fn func() T) (T, error) {
	out := make(chan T, 1)
	var zero T
	if err := d.Post(ctx, Event{Kind: KindControl, Call: func() { out <- fn() }}); err != nil {
		return zero, err
	}
	select {
	case v := <-out:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int { return len(d.queue) }

// Run dispatches queued events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.queue:
			d.Dispatch(ev)
		}
	}
}

// Drain dispatches every event already queued and returns how many ran.
// Used when a caller needs the loop's effects without running it, such as
// during shutdown polling.
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		select {
		case ev := <-d.queue:
			d.Dispatch(ev)
			n++
		default:
			return n
		}
	}
}
