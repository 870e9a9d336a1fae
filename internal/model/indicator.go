package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// IndicatorResult is one point of an indicator series for a symbol and bar size.
type IndicatorResult struct {
	Name    string    `json:"name"` // e.g. "ATR_14", "ADX_14"
	Symbol  string    `json:"symbol"`
	BarSize int       `json:"bar_size"`
	Value   float64   `json:"value"`
	Slope   float64   `json:"slope"`
	TS      time.Time `json:"ts"`
	Formed  bool      `json:"formed"` // false for forming (intra-bar) values
}

// StreamKey returns the Redis stream key: "ind:{name}:{barSize}t:{symbol}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.Name + ":" + strconv.Itoa(r.BarSize) + "t:" + r.Symbol
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
