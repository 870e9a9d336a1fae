package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Candle is a tick-count OHLC bar. A bar closes when Ticks reaches BarSize.
// TS is the timestamp of the last tick folded into the bar.
type Candle struct {
	Symbol  string    `json:"symbol"`
	BarSize int       `json:"bar_size"` // ticks per bar
	TS      time.Time `json:"ts"`
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  int64     `json:"volume"`
	Ticks   int       `json:"ticks"`
	Forming bool      `json:"forming"` // true while the bar is still accumulating ticks
}

// Key returns "symbol:barSize".
func (c *Candle) Key() string {
	return c.Symbol + ":" + strconv.Itoa(c.BarSize)
}

// StreamKey returns the Redis stream key: "bar:{barSize}t:{symbol}".
func (c *Candle) StreamKey() string {
	return "bar:" + strconv.Itoa(c.BarSize) + "t:" + c.Symbol
}

// Ratio is the completed fraction of the bar, ticks/barSize, in (0, 1].
func (c *Candle) Ratio() float64 {
	if c.BarSize <= 0 {
		return 1
	}
	return float64(c.Ticks) / float64(c.BarSize)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
