package model

import "time"

// Tick is a single last-trade print from the feed.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Qty    int64     `json:"qty"` // last traded size, 0 when the feed omits it
	TS     time.Time `json:"ts"`
}
