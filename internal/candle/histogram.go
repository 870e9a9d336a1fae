package candle

import (
	"fmt"
	"math"
	"sort"

	"daytrader/internal/model"
)

// MoveHistogram counts moves by size, overall and per color.
// Each owner keeps its own histogram; nothing is shared between instances.
type MoveHistogram struct {
	all     map[int]int
	byColor map[Color]map[int]int
}

// NewMoveHistogram returns an empty histogram.
func NewMoveHistogram() *MoveHistogram {
	return &MoveHistogram{
		all: make(map[int]int),
		byColor: map[Color]map[int]int{
			Green: {},
			Red:   {},
			Black: {},
		},
	}
}

// Add counts one move.
func (h *MoveHistogram) Add(m Move) {
	if m.Size <= 0 {
		return
	}
	h.all[m.Size]++
	if bucket, ok := h.byColor[m.Color]; ok {
		bucket[m.Size]++
	}
}

// AddHistory counts every move in history.
func (h *MoveHistogram) AddHistory(history []Move) {
	for _, m := range history {
		h.Add(m)
	}
}

// AddBars counts every move found in bars.
func (h *MoveHistogram) AddBars(bars []model.Candle) {
	h.AddHistory(MoveHistory(bars))
}

// Counts returns size→count for color, or for all moves when color is not
// green, red or black. The map is a copy.
func (h *MoveHistogram) Counts(color Color) map[int]int {
	src, ok := h.byColor[color]
	if !ok {
		src = h.all
	}
	out := make(map[int]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Sizes expands the histogram into a sorted list of move sizes.
func (h *MoveHistogram) Sizes(color Color) []int {
	var sizes []int
	for size, n := range h.Counts(color) {
		for i := 0; i < n; i++ {
			sizes = append(sizes, size)
		}
	}
	sort.Ints(sizes)
	return sizes
}

// MoveStats summarises a histogram. Std is the population standard deviation.
type MoveStats struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Ratio float64 `json:"ratio"` // Mean/Std, 0 when Std is 0
	Count int     `json:"count"`
}

// Stats computes MoveStats for color (all moves for an unknown color).
func (h *MoveHistogram) Stats(color Color) MoveStats {
	sizes := h.Sizes(color)
	if len(sizes) == 0 {
		return MoveStats{}
	}
	var sum float64
	for _, s := range sizes {
		sum += float64(s)
	}
	mean := sum / float64(len(sizes))
	var ss float64
	for _, s := range sizes {
		d := float64(s) - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(sizes)))
	st := MoveStats{Mean: mean, Std: std, Count: len(sizes)}
	if std > 0 {
		st.Ratio = mean / std
	}
	return st
}

func (s MoveStats) String() string {
	return fmt.Sprintf("n=%d mean=%.2f std=%.2f ratio=%.2f", s.Count, s.Mean, s.Std, s.Ratio)
}

// Summary renders Stats for all moves, then green and red, on one line.
// It is empty when no move has been counted.
func (h *MoveHistogram) Summary() string {
	all := h.Stats(None)
	if all.Count == 0 {
		return ""
	}
	return fmt.Sprintf("all %s; green %s; red %s", all, h.Stats(Green), h.Stats(Red))
}
