// Package position accounts per-(owner, range) liquidity and fee debt.
// The ledger owns every record; callers address positions by key and
// mutate them only through ledger methods.
package position

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tickflow/internal/fixedpoint"
)

var (
	// ErrEmptyPoke rejects a zero-delta update of a position that holds
	// no liquidity; poking only settles fees on a nonempty position.
	ErrEmptyPoke = errors.New("position: cannot poke a position with no liquidity")
)

// Key addresses one position.
type Key struct {
	Owner     common.Address
	TickLower int
	TickUpper int
}

// Info is a read-only view of one position record.
type Info struct {
	Liquidity                *uint256.Int
	FeeGrowthInside0LastX128 *uint256.Int
	FeeGrowthInside1LastX128 *uint256.Int
	TokensOwed0              *uint256.Int
	TokensOwed1              *uint256.Int
}

type record struct {
	liquidity                *uint256.Int
	feeGrowthInside0LastX128 *uint256.Int
	feeGrowthInside1LastX128 *uint256.Int
	tokensOwed0              *uint256.Int
	tokensOwed1              *uint256.Int
}

// Ledger owns all position records for a pool.
type Ledger struct {
	positions map[Key]*record
}

func NewLedger() *Ledger {
	return &Ledger{positions: make(map[Key]*record)}
}

// Staged is a validated position update that has not been installed
// yet. It is computed against a copy of the live record, so a staged
// update that is never committed leaves the ledger untouched.
type Staged struct {
	key Key
	rec *record
}

// Stage computes a liquidity delta against the position identified by
// key, settling fees accrued since the last touch into tokensOwed. Owed
// deltas are computed with the pre-update liquidity: growth that
// happened before the change belongs to the old size. Owed totals
// accumulate with wraparound; holders are expected to collect before
// the uint128 ceiling. Nothing is installed until Commit.
func (l *Ledger) Stage(key Key, liquidityDelta *big.Int, feeGrowthInside0X128, feeGrowthInside1X128 *uint256.Int) (*Staged, error) {
	rec := &record{
		liquidity:                new(uint256.Int),
		feeGrowthInside0LastX128: new(uint256.Int),
		feeGrowthInside1LastX128: new(uint256.Int),
		tokensOwed0:              new(uint256.Int),
		tokensOwed1:              new(uint256.Int),
	}
	if existing, ok := l.positions[key]; ok {
		rec.liquidity.Set(existing.liquidity)
		rec.feeGrowthInside0LastX128.Set(existing.feeGrowthInside0LastX128)
		rec.feeGrowthInside1LastX128.Set(existing.feeGrowthInside1LastX128)
		rec.tokensOwed0.Set(existing.tokensOwed0)
		rec.tokensOwed1.Set(existing.tokensOwed1)
	}

	var liquidityNext *uint256.Int
	if liquidityDelta.Sign() == 0 {
		if rec.liquidity.IsZero() {
			return nil, ErrEmptyPoke
		}
		liquidityNext = rec.liquidity
	} else {
		var err error
		liquidityNext, err = fixedpoint.AddDelta(rec.liquidity, liquidityDelta)
		if err != nil {
			return nil, err
		}
	}

	delta0 := new(uint256.Int).Sub(feeGrowthInside0X128, rec.feeGrowthInside0LastX128)
	delta1 := new(uint256.Int).Sub(feeGrowthInside1X128, rec.feeGrowthInside1LastX128)
	owed0, err := fixedpoint.MulDiv(delta0, rec.liquidity, fixedpoint.Q128)
	if err != nil {
		return nil, err
	}
	owed1, err := fixedpoint.MulDiv(delta1, rec.liquidity, fixedpoint.Q128)
	if err != nil {
		return nil, err
	}

	rec.liquidity = liquidityNext
	rec.feeGrowthInside0LastX128.Set(feeGrowthInside0X128)
	rec.feeGrowthInside1LastX128.Set(feeGrowthInside1X128)
	rec.tokensOwed0.Add(rec.tokensOwed0, owed0)
	rec.tokensOwed1.Add(rec.tokensOwed1, owed1)

	return &Staged{key: key, rec: rec}, nil
}

// Commit installs a staged update.
func (l *Ledger) Commit(st *Staged) {
	l.positions[st.key] = st.rec
}

// Update stages and immediately commits a liquidity delta.
func (l *Ledger) Update(key Key, liquidityDelta *big.Int, feeGrowthInside0X128, feeGrowthInside1X128 *uint256.Int) error {
	st, err := l.Stage(key, liquidityDelta, feeGrowthInside0X128, feeGrowthInside1X128)
	if err != nil {
		return err
	}
	l.Commit(st)
	return nil
}

// Credit adds directly withdrawable token amounts to a position, used
// when burned liquidity is converted into owed balances.
func (l *Ledger) Credit(key Key, amount0, amount1 *uint256.Int) {
	rec, ok := l.positions[key]
	if !ok {
		return
	}
	rec.tokensOwed0.Add(rec.tokensOwed0, amount0)
	rec.tokensOwed1.Add(rec.tokensOwed1, amount1)
}

// Collect removes up to the requested amounts from the position's owed
// balances and returns what was actually taken, clamping rather than
// failing on over-request.
func (l *Ledger) Collect(key Key, requested0, requested1 *uint256.Int) (*uint256.Int, *uint256.Int) {
	rec, ok := l.positions[key]
	if !ok {
		return new(uint256.Int), new(uint256.Int)
	}
	paid0 := new(uint256.Int).Set(requested0)
	if paid0.Gt(rec.tokensOwed0) {
		paid0.Set(rec.tokensOwed0)
	}
	paid1 := new(uint256.Int).Set(requested1)
	if paid1.Gt(rec.tokensOwed1) {
		paid1.Set(rec.tokensOwed1)
	}
	rec.tokensOwed0.Sub(rec.tokensOwed0, paid0)
	rec.tokensOwed1.Sub(rec.tokensOwed1, paid1)
	return paid0, paid1
}

// Put installs a record wholesale, replacing any existing one. Used when
// rebuilding a ledger from a snapshot.
func (l *Ledger) Put(key Key, info Info) {
	rec := &record{
		liquidity:                new(uint256.Int),
		feeGrowthInside0LastX128: new(uint256.Int),
		feeGrowthInside1LastX128: new(uint256.Int),
		tokensOwed0:              new(uint256.Int),
		tokensOwed1:              new(uint256.Int),
	}
	if info.Liquidity != nil {
		rec.liquidity.Set(info.Liquidity)
	}
	if info.FeeGrowthInside0LastX128 != nil {
		rec.feeGrowthInside0LastX128.Set(info.FeeGrowthInside0LastX128)
	}
	if info.FeeGrowthInside1LastX128 != nil {
		rec.feeGrowthInside1LastX128.Set(info.FeeGrowthInside1LastX128)
	}
	if info.TokensOwed0 != nil {
		rec.tokensOwed0.Set(info.TokensOwed0)
	}
	if info.TokensOwed1 != nil {
		rec.tokensOwed1.Set(info.TokensOwed1)
	}
	l.positions[key] = rec
}

// Get returns a copy of the position record, if present.
func (l *Ledger) Get(key Key) (Info, bool) {
	rec, ok := l.positions[key]
	if !ok {
		return Info{}, false
	}
	return Info{
		Liquidity:                new(uint256.Int).Set(rec.liquidity),
		FeeGrowthInside0LastX128: new(uint256.Int).Set(rec.feeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: new(uint256.Int).Set(rec.feeGrowthInside1LastX128),
		TokensOwed0:              new(uint256.Int).Set(rec.tokensOwed0),
		TokensOwed1:              new(uint256.Int).Set(rec.tokensOwed1),
	}, true
}

// Each visits every position record.
func (l *Ledger) Each(fn func(key Key, info Info)) {
	for key := range l.positions {
		info, _ := l.Get(key)
		fn(key, info)
	}
}
