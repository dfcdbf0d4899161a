// Package tick tracks per-tick liquidity and the "outside" fee and time
// accumulators used to reconstruct in-range growth. Outside values only
// carry relative meaning: they are seeded against the current globals
// when a tick first initializes and mirrored on every crossing.
package tick

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrLiquidityGross = errors.New("tick: gross liquidity exceeds per-tick maximum")
	ErrLiquidityNet   = errors.New("tick: net liquidity out of int128 range")
)

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Info is the bookkeeping record for one initialized tick.
type Info struct {
	// LiquidityGross is the total absolute liquidity referencing this
	// tick; a record exists exactly while it is nonzero.
	LiquidityGross *uint256.Int
	// LiquidityNet is added to active liquidity when price crosses this
	// tick left to right, subtracted right to left.
	LiquidityNet *big.Int

	FeeGrowthOutside0X128 *uint256.Int
	FeeGrowthOutside1X128 *uint256.Int

	SecondsPerLiquidityOutsideX128 *uint256.Int
	TickCumulativeOutside          int64
	SecondsOutside                 uint64
}

func newInfo() *Info {
	return &Info{
		LiquidityGross:                 new(uint256.Int),
		LiquidityNet:                   new(big.Int),
		FeeGrowthOutside0X128:          new(uint256.Int),
		FeeGrowthOutside1X128:          new(uint256.Int),
		SecondsPerLiquidityOutsideX128: new(uint256.Int),
	}
}

// Store owns all tick records for a pool. Record existence is the
// initialization flag; there is no zero-valued placeholder state.
type Store struct {
	ticks map[int]*Info
}

func NewStore() *Store {
	return &Store{ticks: make(map[int]*Info)}
}

// Get returns the record for tick if it is initialized.
func (s *Store) Get(tick int) (Info, bool) {
	info, ok := s.ticks[tick]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Count returns the number of initialized ticks.
func (s *Store) Count() int {
	return len(s.ticks)
}

// Each visits every initialized tick.
func (s *Store) Each(fn func(tick int, info Info)) {
	for t, info := range s.ticks {
		fn(t, *info)
	}
}

// Staged is a validated tick update that has not been installed yet.
// It is computed against a copy of the live record, so a staged update
// that is never committed leaves the store untouched.
type Staged struct {
	tick    int
	info    *Info
	flipped bool
}

// Info returns the record value a commit would install.
func (st *Staged) Info() *Info { return st.info }

// Flipped reports whether committing changes the tick between
// initialized and uninitialized.
func (st *Staged) Flipped() bool { return st.flipped }

// Stage computes the effect of applying a liquidity delta to one side of
// a range without touching the store. Commit installs the result.
func (s *Store) Stage(
	tick, currentTick int,
	liquidityDelta *big.Int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
	secondsPerLiquidityCumulativeX128 *uint256.Int,
	tickCumulative int64,
	time uint64,
	upper bool,
	maxLiquidity *uint256.Int,
) (*Staged, error) {
	var info *Info
	if existing, ok := s.ticks[tick]; ok {
		info = copyInfo(existing)
	} else {
		info = newInfo()
	}

	grossBefore := info.LiquidityGross.ToBig()
	grossAfter := new(big.Int).Add(grossBefore, liquidityDelta)
	if grossAfter.Sign() < 0 {
		return nil, ErrLiquidityGross
	}
	grossAfterU, overflow := uint256.FromBig(grossAfter)
	if overflow || grossAfterU.Gt(maxLiquidity) {
		return nil, ErrLiquidityGross
	}

	flipped := (grossAfter.Sign() == 0) != (grossBefore.Sign() == 0)

	if grossBefore.Sign() == 0 {
		// Growth that happened before a tick existed is attributed to
		// the side below it.
		if tick <= currentTick {
			info.FeeGrowthOutside0X128.Set(feeGrowthGlobal0X128)
			info.FeeGrowthOutside1X128.Set(feeGrowthGlobal1X128)
			info.SecondsPerLiquidityOutsideX128.Set(secondsPerLiquidityCumulativeX128)
			info.TickCumulativeOutside = tickCumulative
			info.SecondsOutside = time
		}
	}

	info.LiquidityGross = grossAfterU

	if upper {
		info.LiquidityNet.Sub(info.LiquidityNet, liquidityDelta)
	} else {
		info.LiquidityNet.Add(info.LiquidityNet, liquidityDelta)
	}
	if info.LiquidityNet.Cmp(maxInt128) > 0 || info.LiquidityNet.Cmp(minInt128) < 0 {
		return nil, ErrLiquidityNet
	}

	return &Staged{tick: tick, info: info, flipped: flipped}, nil
}

// Commit installs a staged update. A record left with zero gross
// liquidity is removed outright.
func (s *Store) Commit(st *Staged) {
	if st.info.LiquidityGross.IsZero() {
		delete(s.ticks, st.tick)
		return
	}
	s.ticks[st.tick] = st.info
}

// Update stages and immediately commits a liquidity delta, reporting
// whether the tick flipped between initialized and uninitialized.
func (s *Store) Update(
	tick, currentTick int,
	liquidityDelta *big.Int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
	secondsPerLiquidityCumulativeX128 *uint256.Int,
	tickCumulative int64,
	time uint64,
	upper bool,
	maxLiquidity *uint256.Int,
) (bool, error) {
	st, err := s.Stage(
		tick, currentTick, liquidityDelta,
		feeGrowthGlobal0X128, feeGrowthGlobal1X128,
		secondsPerLiquidityCumulativeX128, tickCumulative, time,
		upper, maxLiquidity,
	)
	if err != nil {
		return false, err
	}
	s.Commit(st)
	return st.flipped, nil
}

func copyInfo(src *Info) *Info {
	dst := newInfo()
	dst.LiquidityGross.Set(src.LiquidityGross)
	dst.LiquidityNet.Set(src.LiquidityNet)
	dst.FeeGrowthOutside0X128.Set(src.FeeGrowthOutside0X128)
	dst.FeeGrowthOutside1X128.Set(src.FeeGrowthOutside1X128)
	dst.SecondsPerLiquidityOutsideX128.Set(src.SecondsPerLiquidityOutsideX128)
	dst.TickCumulativeOutside = src.TickCumulativeOutside
	dst.SecondsOutside = src.SecondsOutside
	return dst
}

// Put installs a record wholesale, replacing any existing one. Used when
// rebuilding a store from a snapshot.
func (s *Store) Put(tick int, info Info) {
	rec := newInfo()
	if info.LiquidityGross != nil {
		rec.LiquidityGross.Set(info.LiquidityGross)
	}
	if info.LiquidityNet != nil {
		rec.LiquidityNet.Set(info.LiquidityNet)
	}
	if info.FeeGrowthOutside0X128 != nil {
		rec.FeeGrowthOutside0X128.Set(info.FeeGrowthOutside0X128)
	}
	if info.FeeGrowthOutside1X128 != nil {
		rec.FeeGrowthOutside1X128.Set(info.FeeGrowthOutside1X128)
	}
	if info.SecondsPerLiquidityOutsideX128 != nil {
		rec.SecondsPerLiquidityOutsideX128.Set(info.SecondsPerLiquidityOutsideX128)
	}
	rec.TickCumulativeOutside = info.TickCumulativeOutside
	rec.SecondsOutside = info.SecondsOutside
	s.ticks[tick] = rec
}

// Clear removes the record for tick entirely.
func (s *Store) Clear(tick int) {
	delete(s.ticks, tick)
}

// FeeGrowthInside returns the fee growth per unit liquidity accrued
// inside [lower, upper]. Values wrap modulo 2^256; only differences of
// the results are meaningful.
func (s *Store) FeeGrowthInside(
	lower, upper, currentTick int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
) (*uint256.Int, *uint256.Int) {
	return GrowthInside(lower, upper, currentTick, s.infoOrZero(lower), s.infoOrZero(upper),
		feeGrowthGlobal0X128, feeGrowthGlobal1X128)
}

// GrowthInside is FeeGrowthInside over explicit boundary records, for
// callers holding staged records the store does not know about yet.
func GrowthInside(
	lower, upper, currentTick int,
	lowerInfo, upperInfo *Info,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
) (*uint256.Int, *uint256.Int) {
	var below0, below1 uint256.Int
	if currentTick >= lower {
		below0.Set(lowerInfo.FeeGrowthOutside0X128)
		below1.Set(lowerInfo.FeeGrowthOutside1X128)
	} else {
		below0.Sub(feeGrowthGlobal0X128, lowerInfo.FeeGrowthOutside0X128)
		below1.Sub(feeGrowthGlobal1X128, lowerInfo.FeeGrowthOutside1X128)
	}

	var above0, above1 uint256.Int
	if currentTick < upper {
		above0.Set(upperInfo.FeeGrowthOutside0X128)
		above1.Set(upperInfo.FeeGrowthOutside1X128)
	} else {
		above0.Sub(feeGrowthGlobal0X128, upperInfo.FeeGrowthOutside0X128)
		above1.Sub(feeGrowthGlobal1X128, upperInfo.FeeGrowthOutside1X128)
	}

	inside0 := new(uint256.Int).Sub(feeGrowthGlobal0X128, &below0)
	inside0.Sub(inside0, &above0)
	inside1 := new(uint256.Int).Sub(feeGrowthGlobal1X128, &below1)
	inside1.Sub(inside1, &above1)
	return inside0, inside1
}

// Cross flips every outside accumulator of tick to the other side of the
// current price and returns the net liquidity to apply. The caller
// negates the result when moving toward lower ticks.
func (s *Store) Cross(
	tick int,
	feeGrowthGlobal0X128, feeGrowthGlobal1X128 *uint256.Int,
	secondsPerLiquidityCumulativeX128 *uint256.Int,
	tickCumulative int64,
	time uint64,
) *big.Int {
	info, ok := s.ticks[tick]
	if !ok {
		return new(big.Int)
	}
	info.FeeGrowthOutside0X128.Sub(feeGrowthGlobal0X128, info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128.Sub(feeGrowthGlobal1X128, info.FeeGrowthOutside1X128)
	info.SecondsPerLiquidityOutsideX128.Sub(secondsPerLiquidityCumulativeX128, info.SecondsPerLiquidityOutsideX128)
	info.TickCumulativeOutside = tickCumulative - info.TickCumulativeOutside
	info.SecondsOutside = time - info.SecondsOutside
	return new(big.Int).Set(info.LiquidityNet)
}

func (s *Store) infoOrZero(tick int) *Info {
	if info, ok := s.ticks[tick]; ok {
		return info
	}
	return newInfo()
}
