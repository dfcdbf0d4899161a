package pool

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// SetFeeProtocol configures the per-token protocol fee denominator:
// 1/n of swap and flash fees is diverted to the protocol. Each value is
// 0 (off) or in [4,10].
func (p *Pool) SetFeeProtocol(caller common.Address, feeProtocol0, feeProtocol1 uint8) error {
	if caller != p.cfg.FeeAuthority {
		return ErrNotAuthorized
	}
	if feeProtocol0 != 0 && (feeProtocol0 < 4 || feeProtocol0 > 10) {
		return ErrInvalidFeeProtocol
	}
	if feeProtocol1 != 0 && (feeProtocol1 < 4 || feeProtocol1 > 10) {
		return ErrInvalidFeeProtocol
	}
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	old := p.feeProtocol
	p.feeProtocol = feeProtocol0 + (feeProtocol1 << 4)

	p.logger.Info("protocol fee updated",
		zap.Uint8("old", old),
		zap.Uint8("fee_protocol0", feeProtocol0),
		zap.Uint8("fee_protocol1", feeProtocol1),
	)
	return nil
}

// CollectProtocol pays accrued protocol fees to recipient, clamped to
// what has accrued.
func (p *Pool) CollectProtocol(caller common.Address, recipient common.Address, requested0, requested1 *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if caller != p.cfg.FeeAuthority {
		return nil, nil, ErrNotAuthorized
	}
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	paid0 := new(uint256.Int).Set(requested0)
	if paid0.Gt(p.protocolFees0) {
		paid0.Set(p.protocolFees0)
	}
	paid1 := new(uint256.Int).Set(requested1)
	if paid1.Gt(p.protocolFees1) {
		paid1.Set(p.protocolFees1)
	}

	if !paid0.IsZero() {
		if err := p.token0.Transfer(p.self, recipient, paid0); err != nil {
			return nil, nil, err
		}
		p.protocolFees0.Sub(p.protocolFees0, paid0)
	}
	if !paid1.IsZero() {
		if err := p.token1.Transfer(p.self, recipient, paid1); err != nil {
			return nil, nil, err
		}
		p.protocolFees1.Sub(p.protocolFees1, paid1)
	}

	p.logger.Info("protocol fees collected",
		zap.String("recipient", recipient.Hex()),
		zap.String("amount0", paid0.Dec()),
		zap.String("amount1", paid1.Dec()),
	)
	return paid0, paid1, nil
}
