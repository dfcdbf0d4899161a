package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"tickflow/internal/fixedpoint"
	"tickflow/internal/swap"
)

// FlashCallback runs with the borrowed amounts already transferred; it
// must return them plus the quoted fees to the pool before returning.
type FlashCallback func(fee0, fee1 *uint256.Int, data []byte) error

// Flash lends any amount of both tokens for the duration of the
// callback. Repayment of principal plus ceil(amount*fee/1e6) per token
// is verified through balance deltas; the fee accrues to in-range
// liquidity, minus the protocol's configured share.
func (p *Pool) Flash(recipient common.Address, amount0, amount1 *uint256.Int, data []byte, settle FlashCallback) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	if p.liquidity.IsZero() {
		return ErrNoLiquidity
	}

	feePips := uint256.NewInt(uint64(p.cfg.Fee))
	feeDenom := uint256.NewInt(swap.FeeDenominator)
	fee0, err := fixedpoint.MulDivRoundingUp(amount0, feePips, feeDenom)
	if err != nil {
		return err
	}
	fee1, err := fixedpoint.MulDivRoundingUp(amount1, feePips, feeDenom)
	if err != nil {
		return err
	}

	balance0Before, err := p.token0.BalanceOf(p.self)
	if err != nil {
		return err
	}
	balance1Before, err := p.token1.BalanceOf(p.self)
	if err != nil {
		return err
	}

	if !amount0.IsZero() {
		if err := p.token0.Transfer(p.self, recipient, amount0); err != nil {
			return err
		}
	}
	if !amount1.IsZero() {
		if err := p.token1.Transfer(p.self, recipient, amount1); err != nil {
			return err
		}
	}

	if settle == nil {
		return ErrInsufficientPayment
	}
	if err := settle(new(uint256.Int).Set(fee0), new(uint256.Int).Set(fee1), data); err != nil {
		return err
	}

	balance0After, err := p.token0.BalanceOf(p.self)
	if err != nil {
		return err
	}
	balance1After, err := p.token1.BalanceOf(p.self)
	if err != nil {
		return err
	}

	required0 := new(uint256.Int).Add(balance0Before, fee0)
	required1 := new(uint256.Int).Add(balance1Before, fee1)
	if balance0After.Lt(required0) || balance1After.Lt(required1) {
		return ErrInsufficientPayment
	}

	paid0 := new(uint256.Int).Sub(balance0After, balance0Before)
	paid1 := new(uint256.Int).Sub(balance1After, balance1Before)

	p.creditFlashFee(paid0, true)
	p.creditFlashFee(paid1, false)

	p.logger.Debug("flash",
		zap.String("recipient", recipient.Hex()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
		zap.String("paid0", paid0.Dec()),
		zap.String("paid1", paid1.Dec()),
	)
	return nil
}

// creditFlashFee splits a received fee between the protocol and the
// per-liquidity growth accumulator, mirroring the swap fee mechanism.
func (p *Pool) creditFlashFee(paid *uint256.Int, isToken0 bool) {
	if paid.IsZero() {
		return
	}

	var feeProtocol uint8
	if isToken0 {
		feeProtocol = p.feeProtocol % 16
	} else {
		feeProtocol = p.feeProtocol >> 4
	}

	remaining := new(uint256.Int).Set(paid)
	if feeProtocol > 0 {
		share := new(uint256.Int).Div(paid, uint256.NewInt(uint64(feeProtocol)))
		remaining.Sub(remaining, share)
		if isToken0 {
			p.protocolFees0.Add(p.protocolFees0, share)
		} else {
			p.protocolFees1.Add(p.protocolFees1, share)
		}
	}

	if remaining.IsZero() || p.liquidity.IsZero() {
		return
	}
	growth, err := fixedpoint.MulDiv(remaining, fixedpoint.Q128, p.liquidity)
	if err != nil {
		return
	}
	if isToken0 {
		p.feeGrowthGlobal0X128.Add(p.feeGrowthGlobal0X128, growth)
	} else {
		p.feeGrowthGlobal1X128.Add(p.feeGrowthGlobal1X128, growth)
	}
}
