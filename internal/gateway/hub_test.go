package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"daytrader/internal/model"
)

func TestHistorySince(t *testing.T) {
	h := newHistory(5)
	for i := int64(1); i <= 8; i++ {
		h.push(entry{Seq: i})
	}
	if h.len() != 5 {
		t.Fatalf("len = %d, want 5", h.len())
	}
	got := h.since(0)
	if len(got) != 5 || got[0].Seq != 4 || got[4].Seq != 8 {
		t.Fatalf("since(0) = %+v, want seqs 4..8", got)
	}
	if got := h.since(6); len(got) != 2 || got[0].Seq != 7 {
		t.Fatalf("since(6) = %+v", got)
	}
	if got := newHistory(3).since(0); len(got) != 0 {
		t.Fatalf("empty history returned %d entries", len(got))
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// read returns the next envelope, splitting coalesced frames.
func read(t *testing.T, conn *websocket.Conn, pending *[]envelope) envelope {
	t.Helper()
	for len(*pending) == 0 {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		for _, line := range strings.Split(string(msg), "\n") {
			var env envelope
			if err := json.Unmarshal([]byte(line), &env); err != nil {
				t.Fatalf("bad envelope %q: %v", line, err)
			}
			*pending = append(*pending, env)
		}
	}
	env := (*pending)[0]
	*pending = (*pending)[1:]
	return env
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubStreamsFilteredRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(16, 100)
	go h.Run(ctx)
	srv := httptest.NewServer(h)
	defer srv.Close()

	all := dial(t, srv, "")
	spy := dial(t, srv, "strategy=spy-1")
	waitClients(t, h, 2)

	h.Record(model.EventRecord{Kind: model.RecordNewBar, Strategy: "es-1"})
	h.Record(model.EventRecord{Kind: model.RecordSignal, Strategy: "spy-1"})

	var pa, ps []envelope
	if env := read(t, all, &pa); env.Seq != 1 || env.Strategy != "es-1" {
		t.Errorf("first = %+v", env)
	}
	if env := read(t, all, &pa); env.Seq != 2 || env.Record.Kind != model.RecordSignal {
		t.Errorf("second = %+v", env)
	}
	if env := read(t, spy, &ps); env.Seq != 2 || env.Strategy != "spy-1" {
		t.Errorf("filtered = %+v", env)
	}
}

func TestHubReplaysSince(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(16, 100)
	go h.Run(ctx)
	srv := httptest.NewServer(h)
	defer srv.Close()

	for i := 0; i < 3; i++ {
		h.Record(model.EventRecord{Kind: model.RecordNewBar, Strategy: "spy-1"})
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.Seq() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	conn := dial(t, srv, "since=1")
	var pending []envelope
	for _, want := range []int64{2, 3} {
		if env := read(t, conn, &pending); env.Seq != want {
			t.Fatalf("seq = %d, want %d", env.Seq, want)
		}
	}
}

func TestHubRecordDropsWhenFull(t *testing.T) {
	h := NewHub(1, 10)
	drops := 0
	h.OnDrop = func() { drops++ }
	h.Record(model.EventRecord{})
	h.Record(model.EventRecord{})
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}
}
