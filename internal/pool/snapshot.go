package pool

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"tickflow/internal/model"
	"tickflow/internal/position"
	"tickflow/internal/tick"
	"tickflow/internal/tickmath"
)

// Snapshot captures the full pool state. Ticks and positions are sorted
// so successive snapshots of the same state compare equal.
func (p *Pool) Snapshot() *model.PoolSnapshot {
	snap := &model.PoolSnapshot{
		Token0:      p.cfg.Token0.Hex(),
		Token1:      p.cfg.Token1.Hex(),
		Fee:         p.cfg.Fee,
		TickSpacing: p.cfg.TickSpacing,

		SqrtPriceX96: u256Hex(p.sqrtPriceX96),
		Tick:         p.tickCurrent,
		Liquidity:    u256Hex(p.liquidity),

		FeeGrowthGlobal0X128: u256Hex(p.feeGrowthGlobal0X128),
		FeeGrowthGlobal1X128: u256Hex(p.feeGrowthGlobal1X128),
		ProtocolFees0:        u256Hex(p.protocolFees0),
		ProtocolFees1:        u256Hex(p.protocolFees1),
		FeeProtocol:          p.feeProtocol,

		ObservationIndex:       p.observationIndex,
		ObservationCardinality: p.observationCardinality,
	}

	p.ticks.Each(func(index int, info tick.Info) {
		snap.Ticks = append(snap.Ticks, model.TickSnapshot{
			Tick:                  index,
			LiquidityGross:        u256Hex(info.LiquidityGross),
			LiquidityNet:          info.LiquidityNet.String(),
			FeeGrowthOutside0X128: u256Hex(info.FeeGrowthOutside0X128),
			FeeGrowthOutside1X128: u256Hex(info.FeeGrowthOutside1X128),
		})
	})
	sort.Slice(snap.Ticks, func(i, j int) bool {
		return snap.Ticks[i].Tick < snap.Ticks[j].Tick
	})

	p.positions.Each(func(key position.Key, info position.Info) {
		snap.Positions = append(snap.Positions, model.PositionSnapshot{
			Owner:                key.Owner.Hex(),
			TickLower:            key.TickLower,
			TickUpper:            key.TickUpper,
			Liquidity:            u256Hex(info.Liquidity),
			FeeGrowthInside0X128: u256Hex(info.FeeGrowthInside0LastX128),
			FeeGrowthInside1X128: u256Hex(info.FeeGrowthInside1LastX128),
			TokensOwed0:          u256Hex(info.TokensOwed0),
			TokensOwed1:          u256Hex(info.TokensOwed1),
		})
	})
	sort.Slice(snap.Positions, func(i, j int) bool {
		a, b := snap.Positions[i], snap.Positions[j]
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		if a.TickLower != b.TickLower {
			return a.TickLower < b.TickLower
		}
		return a.TickUpper < b.TickUpper
	})

	return snap
}

// Restore rebuilds pool state from a snapshot. The pool must not have
// been initialized; the observation ring restarts from the current
// clock rather than carrying the snapshotted history.
func (p *Pool) Restore(snap *model.PoolSnapshot) error {
	if !p.sqrtPriceX96.IsZero() {
		return ErrAlreadyInitialized
	}

	sqrtPrice := hexToU256(snap.SqrtPriceX96)
	if _, err := tickmath.TickAtSqrtRatio(sqrtPrice); err != nil {
		return err
	}

	cardinality, cardinalityNext := p.observations.Initialize(p.clock())

	p.sqrtPriceX96 = sqrtPrice
	p.tickCurrent = snap.Tick
	p.liquidity = hexToU256(snap.Liquidity)
	p.feeGrowthGlobal0X128 = hexToU256(snap.FeeGrowthGlobal0X128)
	p.feeGrowthGlobal1X128 = hexToU256(snap.FeeGrowthGlobal1X128)
	p.protocolFees0 = hexToU256(snap.ProtocolFees0)
	p.protocolFees1 = hexToU256(snap.ProtocolFees1)
	p.feeProtocol = snap.FeeProtocol
	p.observationIndex = 0
	p.observationCardinality = cardinality
	p.observationCardinalityNext = cardinalityNext

	for _, t := range snap.Ticks {
		net, ok := new(big.Int).SetString(t.LiquidityNet, 10)
		if !ok {
			return ErrTickRange
		}
		p.ticks.Put(t.Tick, tick.Info{
			LiquidityGross:        hexToU256(t.LiquidityGross),
			LiquidityNet:          net,
			FeeGrowthOutside0X128: hexToU256(t.FeeGrowthOutside0X128),
			FeeGrowthOutside1X128: hexToU256(t.FeeGrowthOutside1X128),
		})
		if err := p.tickBitmap.FlipTick(t.Tick, p.cfg.TickSpacing); err != nil {
			return err
		}
	}

	for _, pos := range snap.Positions {
		p.positions.Put(position.Key{
			Owner:     common.HexToAddress(pos.Owner),
			TickLower: pos.TickLower,
			TickUpper: pos.TickUpper,
		}, position.Info{
			Liquidity:                hexToU256(pos.Liquidity),
			FeeGrowthInside0LastX128: hexToU256(pos.FeeGrowthInside0X128),
			FeeGrowthInside1LastX128: hexToU256(pos.FeeGrowthInside1X128),
			TokensOwed0:              hexToU256(pos.TokensOwed0),
			TokensOwed1:              hexToU256(pos.TokensOwed1),
		})
	}

	p.unlocked = true
	return nil
}

func u256Hex(u *uint256.Int) *hexutil.Big {
	if u == nil {
		u = new(uint256.Int)
	}
	return (*hexutil.Big)(u.ToBig())
}

func hexToU256(h *hexutil.Big) *uint256.Int {
	if h == nil {
		return new(uint256.Int)
	}
	u, _ := uint256.FromBig((*big.Int)(h))
	return u
}
