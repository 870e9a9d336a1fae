package bus

import (
	"context"
	"log"
	"sync"
)

// FanOut broadcasts values from a single input channel to N output
// channels. If an output channel is full, the value is dropped for that
// consumer so a slow sink cannot stall the trading loop.
type FanOut[T any] struct {
	name    string
	mu      sync.RWMutex
	outputs []chan T
	names   []string
	bufSize int

	// OnDrop is called when a value is dropped for a subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](name string, outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{
		name:    name,
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new named output channel.
func (f *FanOut[T]) Subscribe(subscriber string) <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, subscriber)
	f.mu.Unlock()
	return ch
}

// Publish delivers v to every subscriber without blocking.
func (f *FanOut[T]) Publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i, ch := range f.outputs {
		select {
		case ch <- v:
		default:
			if f.OnDrop != nil {
				f.OnDrop(f.names[i])
			} else {
				log.Printf("[bus] %s: subscriber %s full, dropping value", f.name, f.names[i])
			}
		}
	}
}

// Run reads from input and publishes until ctx is cancelled or input is
// closed, then closes every output channel.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer f.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.Publish(v)
		}
	}
}

// Close closes every output channel. Publish must not be called afterwards.
func (f *FanOut[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.outputs {
		close(ch)
	}
	f.outputs = nil
	f.names = nil
}

// ChannelStat reports occupancy of one subscriber channel.
type ChannelStat struct {
	Subscriber string
	Len        int
	Cap        int
}

// ChannelStats returns occupancy for each subscriber channel.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Subscriber: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
