package bus

import (
	"context"
	"testing"
	"time"

	"daytrader/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New[model.Candle]("bars", 10)
	out1 := fo.Subscribe("sqlite")
	out2 := fo.Subscribe("redis")

	input := make(chan model.Candle, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Candle{Symbol: "ES", BarSize: 100, Open: 100, High: 110, Low: 90, Close: 105}

	for i, out := range []<-chan model.Candle{out1, out2} {
		select {
		case c := <-out:
			if c.Symbol != "ES" {
				t.Errorf("out%d: expected ES, got %s", i+1, c.Symbol)
			}
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out waiting for candle", i+1)
		}
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := New[model.EventRecord]("events", 1)
	fast := fo.Subscribe("fast")
	_ = fo.Subscribe("slow")

	var dropped []string
	fo.OnDrop = func(s string) { dropped = append(dropped, s) }

	fo.Publish(model.EventRecord{Kind: model.RecordSignal})
	<-fast
	fo.Publish(model.EventRecord{Kind: model.RecordSignal})

	if len(dropped) != 1 || dropped[0] != "slow" {
		t.Errorf("dropped = %v, want [slow]", dropped)
	}
	stats := fo.ChannelStats()
	if len(stats) != 2 || stats[1].Len != 1 || stats[1].Cap != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFanOut_ClosesOutputsWhenInputCloses(t *testing.T) {
	fo := New[int]("ints", 1)
	out := fo.Subscribe("only")
	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()
	close(input)
	<-done
	if _, ok := <-out; ok {
		t.Error("output should be closed")
	}
}
