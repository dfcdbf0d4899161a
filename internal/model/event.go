package model

// EventRecord is the replay output for one applied action. Amounts are
// signed decimal strings from the pool's perspective.
type EventRecord struct {
	Seq  uint64 `json:"seq"`
	Op   string `json:"op"`
	Time uint64 `json:"time"`

	Owner     string `json:"owner,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	TickLower int    `json:"tick_lower,omitempty"`
	TickUpper int    `json:"tick_upper,omitempty"`

	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`

	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int    `json:"tick"`
	Liquidity    string `json:"liquidity"`

	Err string `json:"err,omitempty"`
}
