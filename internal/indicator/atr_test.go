package indicator

import (
	"math/rand"
	"testing"
)

func TestATR_EndToEndExample(t *testing.T) {
	f := newFeeder(3)
	atr := f.reg.ATR(f, 14)

	f.ticks(100, 101, 99) // bar1: o100 h101 l99 c99
	f.ticks(99, 102, 101) // bar2: o99 h102 l99 c101

	if f.hist.Len() != 2 {
		t.Fatalf("closed bars = %d, want 2", f.hist.Len())
	}
	b2 := f.hist.Raw()[1]
	if b2.Open != 99 || b2.High != 102 || b2.Low != 99 || b2.Close != 101 {
		t.Fatalf("bar2 = %+v", b2)
	}

	// TR(bar1) uses its own open: max(2, 1, 1) = 2; TR(bar2) = 3.
	assertClose(t, "formed ATR after bar1", atr.Formed(1), 2, 1e-12)
	// Warm-up: 14-bar window with 2 bars averages over 2, not 14.
	assertClose(t, "formed ATR after bar2", atr.Formed(0), 2.5, 1e-12)
	assertClose(t, "formed slope", atr.FormedSlope(0), 0.5, 1e-12)
	assertClose(t, "forming equals formed at close", atr.Forming(0), 2.5, 1e-12)
}

func TestATR_WarmupFormingEstimate(t *testing.T) {
	f := newFeeder(3)
	atr := f.reg.ATR(f, 14)
	f.ticks(100, 101, 99, 99, 102, 101)

	// First tick of bar3 at r=1/3: TR against last close 101 is 3.
	f.tick(104)
	r := 1.0 / 3
	want := (2.5*2 + r*3) / (2 + r)
	assertClose(t, "forming ATR", atr.Forming(0), want, 1e-12)
	wantSlope := r*(want-2.5) + (1-r)*(2.5-2)
	assertClose(t, "forming slope", atr.FormingSlope(0), wantSlope, 1e-12)

	// formed track unchanged until the bar closes
	if n := atr.Series().FormedValues.Len(); n != 2 {
		t.Errorf("formed points = %d, want 2", n)
	}
	// forming track: one committed point per closed bar plus the live head
	if n := atr.Series().FormingValues.Len(); n != 3 {
		t.Errorf("forming points = %d, want 3", n)
	}
	f.tick(103)
	if n := atr.Series().FormingValues.Len(); n != 3 {
		t.Errorf("head must be overwritten, forming points = %d", n)
	}
}

func TestATR_WindowFullStillWarmsUpWhileForming(t *testing.T) {
	f := newFeeder(2)
	atr := f.reg.ATR(f, 2)
	f.ticks(100, 101) // TR 1
	f.ticks(102, 103) // TR 2 against 101
	assertClose(t, "formed", atr.Formed(0), 1.5, 1e-12)

	// closed bars == window: warm-up weighting, TR 4 against 103 at r=1/2
	f.tick(107)
	assertClose(t, "forming at N == window", atr.Forming(0), (1.5*2+0.5*4)/2.5, 1e-12)
	assertClose(t, "forming slope", atr.FormingSlope(0), 0.5*(2-1.5)+0.5*(1.5-1), 1e-12)

	// closing tick rolls the window: drop TR 1, add TR 4
	f.tick(106)
	assertClose(t, "formed after roll", atr.Formed(0), 3, 1e-12)
	assertClose(t, "matches ATRAt", atr.Formed(0), ATRAt(f.hist.Raw(), 2, 0), 1e-12)
}

func TestATR_FirstTickHasNoPredecessor(t *testing.T) {
	f := newFeeder(4)
	atr := f.reg.ATR(f, 14)
	f.tick(100)
	// no closed bar: range measured against the bar's own open
	assertClose(t, "single tick", atr.Forming(0), 0, 1e-12)
	f.tick(101.5)
	assertClose(t, "two ticks", atr.Forming(0), 1.5, 1e-12)
}

func TestATR_FormingConvergesToFullDefinition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, barSize := range []int{1, 3, 7} {
		f := newFeeder(barSize)
		windows := []int{1, 3, 14}
		atrs := make([]*ATR, len(windows))
		for i, w := range windows {
			atrs[i] = f.reg.ATR(f, w)
		}

		price := 100.0
		for n := 0; n < 400; n++ {
			price += float64(rng.Intn(9)-4) * 0.25
			if !f.tick(price) {
				continue
			}
			for i, w := range windows {
				want := ATRAt(f.hist.Raw(), w, 0)
				assertClose(t, "forming at close", atrs[i].Forming(0), want, 1e-9)
				assertClose(t, "formed at close", atrs[i].Formed(0), want, 1e-9)
				if atrs[i].Series().FormedValues.Len() != f.hist.Len() {
					t.Fatalf("formed points %d != closed bars %d", atrs[i].Series().FormedValues.Len(), f.hist.Len())
				}
			}
		}
	}
}

func TestATR_SeedsFromExistingHistory(t *testing.T) {
	f := newFeeder(2)
	f.ticks(100, 101, 103, 99, 98, 100, 104, 102)

	late := f.reg.ATR(f, 3)
	for back := 0; back < f.hist.Len(); back++ {
		assertClose(t, "seeded", late.Formed(back), ATRAt(f.hist.Raw(), 3, back), 1e-12)
	}

	f.ticks(101, 100)
	assertClose(t, "after seed", late.Formed(0), ATRAt(f.hist.Raw(), 3, 0), 1e-12)
}

func TestATRAt(t *testing.T) {
	bs := bars(
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 104, 101, 103},
		[4]float64{103, 103, 100, 101},
	)
	// TRs: 2, 4, 3
	assertClose(t, "window 2", ATRAt(bs, 2, 0), 3.5, 1e-12)
	assertClose(t, "window 10", ATRAt(bs, 10, 0), 3, 1e-12)
	assertClose(t, "steps back", ATRAt(bs, 2, 1), 3, 1e-12)
	assertClose(t, "whole history", ATRAt(bs, 0, 0), 3, 1e-12)
	assertClose(t, "empty", ATRAt(nil, 14, 0), 0, 0)
	assertClose(t, "steps back past start", ATRAt(bs, 2, 5), 0, 0)
}
