package model

// Contract describes the traded instrument as the broker knows it.
type Contract struct {
	Symbol        string  `json:"symbol"`
	SecType       string  `json:"sec_type"` // STK, FUT, CASH
	Exchange      string  `json:"exchange"`
	Currency      string  `json:"currency"`
	TickIncrement float64 `json:"tick_increment"` // minimum price movement
}

// Increment returns the price increment, defaulting to 0.01.
func (c *Contract) Increment() float64 {
	if c.TickIncrement <= 0 {
		return 0.01
	}
	return c.TickIncrement
}
