package candle

import (
	"math"
	"testing"

	"daytrader/internal/model"
)

func bar(o, h, l, c float64) model.Candle {
	return model.Candle{Symbol: "ES", BarSize: 4, Open: o, High: h, Low: l, Close: c, Ticks: 4}
}

func green() model.Candle { return bar(10, 12, 9, 11) }
func red() model.Candle   { return bar(11, 12, 9, 10) }
func black() model.Candle { return bar(10, 11, 9, 10) }

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (diff %.6f)", label, got, want, math.Abs(got-want))
	}
}

func TestHeikinAshi_FirstBar(t *testing.T) {
	ha := HeikinAshi(nil, bar(100, 104, 98, 102))
	assertClose(t, "close", ha.Close, 101, 1e-12)
	assertClose(t, "open", ha.Open, 101, 1e-12)
	assertClose(t, "high", ha.High, 104, 1e-12)
	assertClose(t, "low", ha.Low, 98, 1e-12)
}

func TestHeikinAshi_UsesPreviousSmoothedBar(t *testing.T) {
	prev := model.Candle{Open: 100, Close: 106}
	ha := HeikinAshi(&prev, bar(104, 105, 101, 102))
	// open' = (100+106)/2 = 103, close' = 412/4 = 103
	assertClose(t, "open", ha.Open, 103, 1e-12)
	assertClose(t, "close", ha.Close, 103, 1e-12)
	assertClose(t, "high", ha.High, 105, 1e-12)
	assertClose(t, "low", ha.Low, 101, 1e-12)

	// smoothed open above the raw high widens the range
	prev = model.Candle{Open: 110, Close: 112}
	ha = HeikinAshi(&prev, bar(104, 105, 101, 102))
	assertClose(t, "high from open'", ha.High, 111, 1e-12)
}

func TestHeikinAshi_ReplayIsDeterministic(t *testing.T) {
	raw := []model.Candle{
		bar(100, 103, 99, 102), bar(102, 104, 101, 101),
		bar(101, 101, 97, 98), bar(98, 100, 96, 99), bar(99, 105, 99, 104),
	}
	h := NewHistory(len(raw))
	for _, c := range raw {
		h.Append(c)
	}
	replayed := HeikinAshiSeries(raw)
	if len(replayed) != h.Len() || len(h.Smooth()) != len(h.Raw()) {
		t.Fatalf("length mismatch: replay=%d smooth=%d raw=%d", len(replayed), len(h.Smooth()), len(h.Raw()))
	}
	for i := range replayed {
		if replayed[i] != h.Smooth()[i] {
			t.Errorf("bar %d: incremental %+v != replay %+v", i, h.Smooth()[i], replayed[i])
		}
	}
}

func TestColorOf(t *testing.T) {
	if ColorOf(green()) != Green || ColorOf(red()) != Red || ColorOf(black()) != Black {
		t.Fatal("unexpected color classification")
	}
}

func TestMoveClassification(t *testing.T) {
	bars := []model.Candle{green(), green(), green(), red()}

	cur := CurrentMove(bars)
	if cur.Color != Red || cur.Size != 1 {
		t.Errorf("current move = %+v, want red size 1", cur)
	}

	prev := MoveAt(bars, 1)
	if prev.Color != Green || prev.Size != 3 {
		t.Errorf("one bar earlier = %+v, want green size 3", prev)
	}
	// close of last green (11) - open of first green (10)
	assertClose(t, "price change", prev.PriceChange, 1, 1e-12)

	if p := PreviousMove(bars); p != prev {
		t.Errorf("PreviousMove = %+v, want %+v", p, prev)
	}
}

func TestMoveAt_BeyondHistory(t *testing.T) {
	if m := MoveAt([]model.Candle{green()}, 1); m.Color != None || m.Size != 0 {
		t.Errorf("expected empty move, got %+v", m)
	}
	if m := CurrentMove(nil); m.Color != None {
		t.Errorf("expected none, got %+v", m)
	}
}

func TestIsSignalBar(t *testing.T) {
	tests := []struct {
		name   string
		bars   []model.Candle
		thresh int
		want   bool
		color  Color
	}{
		{"empty", nil, 3, false, None},
		{"single bar", []model.Candle{green()}, 1, false, Green},
		{"reversal after long move", []model.Candle{green(), green(), green(), red()}, 3, true, Red},
		{"reversal after short move", []model.Candle{green(), green(), red()}, 3, false, Red},
		{"black bar never signals", []model.Candle{green(), green(), green(), black()}, 3, false, Black},
		{"move still running", []model.Candle{red(), green(), green()}, 1, false, Green},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, c := IsSignalBar(tt.bars, tt.thresh)
			if ok != tt.want || c != tt.color {
				t.Errorf("IsSignalBar = (%v, %s), want (%v, %s)", ok, c, tt.want, tt.color)
			}
		})
	}
}

func TestMoveHistory(t *testing.T) {
	bars := []model.Candle{red(), green(), green(), green(), red(), black()}
	got := MoveHistory(bars)
	want := []Move{
		{Color: Red, Size: 1}, {Color: Green, Size: 3}, {Color: Red, Size: 1}, {Color: Black, Size: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d moves, want %d: %+v", len(got), len(want), got)
	}
	total := 0
	for i := range want {
		if got[i].Color != want[i].Color || got[i].Size != want[i].Size {
			t.Errorf("move %d = %+v, want %+v", i, got[i], want[i])
		}
		total += got[i].Size
	}
	if total != len(bars) {
		t.Errorf("moves cover %d bars, want %d", total, len(bars))
	}
}

func TestMoveHistogram_PerInstance(t *testing.T) {
	a := NewMoveHistogram()
	b := NewMoveHistogram()
	a.AddBars([]model.Candle{red(), green(), green(), green(), red()})

	if len(b.Counts("")) != 0 {
		t.Fatal("histograms must not share state")
	}
	if got := a.Counts(Green)[3]; got != 1 {
		t.Errorf("green size-3 count = %d, want 1", got)
	}
	if got := a.Counts(Red)[1]; got != 2 {
		t.Errorf("red size-1 count = %d, want 2", got)
	}

	st := a.Stats("")
	// sizes 1,3,1: mean 5/3, population std sqrt(8/9)
	assertClose(t, "mean", st.Mean, 5.0/3, 1e-12)
	assertClose(t, "std", st.Std, math.Sqrt(8.0/9), 1e-12)
	assertClose(t, "ratio", st.Ratio, (5.0/3)/math.Sqrt(8.0/9), 1e-12)
	if st.Count != 3 {
		t.Errorf("count = %d", st.Count)
	}
}

func TestMoveHistogram_Summary(t *testing.T) {
	h := NewMoveHistogram()
	if h.Summary() != "" {
		t.Fatalf("empty histogram summary = %q", h.Summary())
	}
	h.AddBars([]model.Candle{red(), green(), green(), green(), red()})
	want := "all n=3 mean=1.67 std=0.94 ratio=1.77; green n=1 mean=3.00 std=0.00 ratio=0.00; red n=2 mean=1.00 std=0.00 ratio=0.00"
	if got := h.Summary(); got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}

func TestTrueRange(t *testing.T) {
	bars := []model.Candle{bar(100, 101, 99, 100)}
	// first bar: prevClose falls back to its own open
	assertClose(t, "first bar", TrueRange(bars, 1), 2, 1e-12)

	bars = append(bars, bar(100, 104, 101, 103))
	// max(3, |104-100|, |100-101|) = 4
	assertClose(t, "gap", TrueRange(bars, 1), 4, 1e-12)
	assertClose(t, "clamped back", TrueRange(bars, 10), 2, 1e-12)
	assertClose(t, "empty", TrueRange(nil, 1), 0, 0)
}
