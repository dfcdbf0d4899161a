package model

// ActionRecord is one line of a replay input stream. Op selects the
// pool operation; unused fields are omitted per op.
type ActionRecord struct {
	Seq  uint64 `json:"seq"`
	Op   string `json:"op"`
	Time uint64 `json:"time,omitempty"`

	Owner     string `json:"owner,omitempty"`
	Recipient string `json:"recipient,omitempty"`

	TickLower int `json:"tick_lower,omitempty"`
	TickUpper int `json:"tick_upper,omitempty"`

	// Amount is the liquidity for mint/burn and the signed specified
	// amount for swap, as a decimal string.
	Amount  string `json:"amount,omitempty"`
	Amount0 string `json:"amount0,omitempty"`
	Amount1 string `json:"amount1,omitempty"`

	ZeroForOne        bool   `json:"zero_for_one,omitempty"`
	SqrtPriceX96      string `json:"sqrt_price_x96,omitempty"`
	SqrtPriceLimitX96 string `json:"sqrt_price_limit_x96,omitempty"`

	FeeProtocol0 uint8  `json:"fee_protocol0,omitempty"`
	FeeProtocol1 uint8  `json:"fee_protocol1,omitempty"`
	Observations uint16 `json:"observations,omitempty"`
}

// Supported action ops.
const (
	OpInitialize       = "initialize"
	OpMint             = "mint"
	OpBurn             = "burn"
	OpCollect          = "collect"
	OpSwap             = "swap"
	OpFlash            = "flash"
	OpSetFeeProtocol   = "set_fee_protocol"
	OpCollectProtocol  = "collect_protocol"
	OpGrowObservations = "grow_observations"
)
