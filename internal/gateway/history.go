package gateway

import "sync"

type entry struct {
	Seq      int64
	Strategy string
	Data     []byte // envelope JSON
}

// history is a fixed-size circular buffer of recent envelopes, used to
// catch up clients that reconnect with the last sequence they saw.
type history struct {
	mu   sync.RWMutex
	buf  []entry
	pos  int // next write position
	full bool
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 1000
	}
	return &history{buf: make([]entry, capacity)}
}

// push stores e, overwriting the oldest entry when full.
func (h *history) push(e entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.pos] = e
	h.pos = (h.pos + 1) % len(h.buf)
	if h.pos == 0 {
		h.full = true
	}
}

// since returns the retained entries with Seq > seq, oldest first.
func (h *history) since(seq int64) []entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, start := h.pos, 0
	if h.full {
		n, start = len(h.buf), h.pos
	}
	var out []entry
	for i := 0; i < n; i++ {
		e := h.buf[(start+i)%len(h.buf)]
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

func (h *history) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.buf)
	}
	return h.pos
}
