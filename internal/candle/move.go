package candle

import "daytrader/internal/model"

// Color classifies a bar by the sign of close-open.
type Color string

const (
	Green Color = "green" // close > open
	Red   Color = "red"   // close < open
	Black Color = "black" // close == open
	None  Color = "none"  // no bars
)

// ColorOf returns the color of c.
func ColorOf(c model.Candle) Color {
	switch {
	case c.Close > c.Open:
		return Green
	case c.Close < c.Open:
		return Red
	default:
		return Black
	}
}

// Move is a maximal run of consecutive same-colored bars ending at some bar.
type Move struct {
	Color       Color   `json:"color"`
	Size        int     `json:"size"`
	PriceChange float64 `json:"price_change"` // close of the last bar minus open of the first
}

// Up reports whether the move is green.
func (m Move) Up() bool { return m.Color == Green }

// CurrentMove returns the move ending at the last bar.
func CurrentMove(bars []model.Candle) Move {
	n := len(bars)
	if n == 0 {
		return Move{Color: None}
	}
	color := ColorOf(bars[n-1])
	size := 1
	for size < n && ColorOf(bars[n-1-size]) == color {
		size++
	}
	return Move{
		Color:       color,
		Size:        size,
		PriceChange: bars[n-1].Close - bars[n-size].Open,
	}
}

// MoveAt returns the move ending barsAgo bars before the last bar.
// MoveAt(bars, 0) equals CurrentMove(bars).
func MoveAt(bars []model.Candle, barsAgo int) Move {
	if barsAgo >= len(bars) {
		return Move{Color: None}
	}
	return CurrentMove(bars[:len(bars)-barsAgo])
}

// PreviousMove returns the move that immediately precedes the current one.
func PreviousMove(bars []model.Candle) Move {
	return MoveAt(bars, CurrentMove(bars).Size)
}

// IsSignalBar reports whether the last bar starts a new non-black move
// after a move of at least thresh bars. The returned color is that of the
// current move.
func IsSignalBar(bars []model.Candle, thresh int) (bool, Color) {
	switch len(bars) {
	case 0:
		return false, None
	case 1:
		return false, ColorOf(bars[0])
	}
	cur := CurrentMove(bars)
	if cur.Size == 1 && cur.Color != Black {
		if PreviousMove(bars).Size >= thresh {
			return true, cur.Color
		}
	}
	return false, cur.Color
}

// MoveHistory splits bars into consecutive moves, oldest first.
func MoveHistory(bars []model.Candle) []Move {
	var rev []Move
	for consumed := 0; consumed < len(bars); {
		m := MoveAt(bars, consumed)
		consumed += m.Size
		rev = append(rev, m)
	}
	out := make([]Move, len(rev))
	for i, m := range rev {
		out[len(rev)-1-i] = m
	}
	return out
}
