package model

import "github.com/ethereum/go-ethereum/common/hexutil"

// PoolSnapshot captures the full pool state at a point in a replay.
// 256-bit quantities are hex-encoded so snapshots round-trip exactly.
type PoolSnapshot struct {
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         uint32 `json:"fee"`
	TickSpacing int    `json:"tick_spacing"`

	SqrtPriceX96 *hexutil.Big `json:"sqrt_price_x96"`
	Tick         int          `json:"tick"`
	Liquidity    *hexutil.Big `json:"liquidity"`

	FeeGrowthGlobal0X128 *hexutil.Big `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 *hexutil.Big `json:"fee_growth_global1_x128"`
	ProtocolFees0        *hexutil.Big `json:"protocol_fees0"`
	ProtocolFees1        *hexutil.Big `json:"protocol_fees1"`
	FeeProtocol          uint8        `json:"fee_protocol"`

	ObservationIndex       uint16 `json:"observation_index"`
	ObservationCardinality uint16 `json:"observation_cardinality"`

	Ticks     []TickSnapshot     `json:"ticks"`
	Positions []PositionSnapshot `json:"positions"`
}

// TickSnapshot is one initialized tick.
type TickSnapshot struct {
	Tick                  int          `json:"tick"`
	LiquidityGross        *hexutil.Big `json:"liquidity_gross"`
	LiquidityNet          string       `json:"liquidity_net"`
	FeeGrowthOutside0X128 *hexutil.Big `json:"fee_growth_outside0_x128"`
	FeeGrowthOutside1X128 *hexutil.Big `json:"fee_growth_outside1_x128"`
}

// PositionSnapshot is one tracked position.
type PositionSnapshot struct {
	Owner     string `json:"owner"`
	TickLower int    `json:"tick_lower"`
	TickUpper int    `json:"tick_upper"`

	Liquidity            *hexutil.Big `json:"liquidity"`
	FeeGrowthInside0X128 *hexutil.Big `json:"fee_growth_inside0_x128"`
	FeeGrowthInside1X128 *hexutil.Big `json:"fee_growth_inside1_x128"`
	TokensOwed0          *hexutil.Big `json:"tokens_owed0"`
	TokensOwed1          *hexutil.Big `json:"tokens_owed1"`
}
