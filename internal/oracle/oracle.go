// Package oracle stores a ring buffer of cumulative tick and
// per-liquidity time observations and interpolates between them for
// time-weighted reads. Timestamps are absolute seconds; slots past the
// current cardinality are pre-touched by Grow so a later cardinality
// bump is a cheap index wrap.
package oracle

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrNotInitialized = errors.New("oracle: not initialized")
	ErrTargetTooOld   = errors.New("oracle: requested time predates oldest observation")
)

// Observation is one ring slot.
type Observation struct {
	BlockTimestamp                    uint64
	TickCumulative                    int64
	SecondsPerLiquidityCumulativeX128 *uint256.Int
	Initialized                       bool
}

// Ring is the observation buffer. Slots are allocated by Grow; the
// active cardinality follows once the write index wraps past the old
// end.
type Ring struct {
	obs []Observation
}

func NewRing() *Ring {
	return &Ring{obs: []Observation{{SecondsPerLiquidityCumulativeX128: new(uint256.Int)}}}
}

// At returns a copy of the observation at index.
func (r *Ring) At(index uint16) Observation {
	o := r.obs[index]
	o.SecondsPerLiquidityCumulativeX128 = new(uint256.Int).Set(r.obs[index].SecondsPerLiquidityCumulativeX128)
	return o
}

// Initialize seeds slot zero at time and returns the initial cardinality
// and next cardinality.
func (r *Ring) Initialize(time uint64) (uint16, uint16) {
	r.obs[0] = Observation{
		BlockTimestamp:                    time,
		SecondsPerLiquidityCumulativeX128: new(uint256.Int),
		Initialized:                       true,
	}
	return 1, 1
}

// transform projects last forward to time given the tick and liquidity
// that were in range for the whole interval.
func transform(last Observation, time uint64, tick int, liquidity *uint256.Int) Observation {
	delta := time - last.BlockTimestamp
	liq := liquidity
	if liq.IsZero() {
		liq = uint256.NewInt(1)
	}
	splDelta := new(uint256.Int).Lsh(uint256.NewInt(delta), 128)
	splDelta.Div(splDelta, liq)
	return Observation{
		BlockTimestamp:                    time,
		TickCumulative:                    last.TickCumulative + int64(tick)*int64(delta),
		SecondsPerLiquidityCumulativeX128: new(uint256.Int).Add(last.SecondsPerLiquidityCumulativeX128, splDelta),
		Initialized:                       true,
	}
}

// Write appends an observation for time, returning the updated index and
// cardinality. Writing twice at the same timestamp is a no-op.
func (r *Ring) Write(index uint16, time uint64, tick int, liquidity *uint256.Int, cardinality, cardinalityNext uint16) (uint16, uint16) {
	last := r.obs[index]
	if last.BlockTimestamp == time {
		return index, cardinality
	}

	cardinalityUpdated := cardinality
	if cardinalityNext > cardinality && index == cardinality-1 {
		cardinalityUpdated = cardinalityNext
	}

	indexUpdated := (index + 1) % cardinalityUpdated
	r.obs[indexUpdated] = transform(last, time, tick, liquidity)
	return indexUpdated, cardinalityUpdated
}

// Grow raises the target cardinality, pre-touching the new slots.
func (r *Ring) Grow(current, next uint16) uint16 {
	if current == 0 {
		return current
	}
	if next <= current {
		return current
	}
	for len(r.obs) < int(next) {
		// Allocate the slot without making it a valid observation.
		r.obs = append(r.obs, Observation{
			BlockTimestamp:                    1,
			SecondsPerLiquidityCumulativeX128: new(uint256.Int),
		})
	}
	return next
}

// ObserveSingle returns the cumulative tick and seconds-per-liquidity
// values as of secondsAgo before time. secondsAgo of zero reads the
// current extrapolated values.
func (r *Ring) ObserveSingle(
	time uint64, secondsAgo uint64,
	tick int, index uint16,
	liquidity *uint256.Int,
	cardinality uint16,
) (int64, *uint256.Int, error) {
	if cardinality == 0 {
		return 0, nil, ErrNotInitialized
	}

	if secondsAgo == 0 {
		last := r.At(index)
		if last.BlockTimestamp != time {
			last = transform(last, time, tick, liquidity)
		}
		return last.TickCumulative, last.SecondsPerLiquidityCumulativeX128, nil
	}

	target := time - secondsAgo
	beforeOrAt, atOrAfter, err := r.surroundingObservations(time, target, tick, index, liquidity, cardinality)
	if err != nil {
		return 0, nil, err
	}

	if beforeOrAt.BlockTimestamp == target {
		return beforeOrAt.TickCumulative, beforeOrAt.SecondsPerLiquidityCumulativeX128, nil
	}
	if atOrAfter.BlockTimestamp == target {
		return atOrAfter.TickCumulative, atOrAfter.SecondsPerLiquidityCumulativeX128, nil
	}

	// Linear interpolation between the surrounding observations.
	obsDelta := atOrAfter.BlockTimestamp - beforeOrAt.BlockTimestamp
	targetDelta := target - beforeOrAt.BlockTimestamp

	tickCum := beforeOrAt.TickCumulative +
		(atOrAfter.TickCumulative-beforeOrAt.TickCumulative)/int64(obsDelta)*int64(targetDelta)

	splRange := new(uint256.Int).Sub(atOrAfter.SecondsPerLiquidityCumulativeX128, beforeOrAt.SecondsPerLiquidityCumulativeX128)
	splRange.Mul(splRange, uint256.NewInt(targetDelta))
	splRange.Div(splRange, uint256.NewInt(obsDelta))
	spl := new(uint256.Int).Add(beforeOrAt.SecondsPerLiquidityCumulativeX128, splRange)

	return tickCum, spl, nil
}

// Observe is the vector form of ObserveSingle.
func (r *Ring) Observe(
	time uint64, secondsAgos []uint64,
	tick int, index uint16,
	liquidity *uint256.Int,
	cardinality uint16,
) ([]int64, []*uint256.Int, error) {
	tickCumulatives := make([]int64, len(secondsAgos))
	spls := make([]*uint256.Int, len(secondsAgos))
	for i, ago := range secondsAgos {
		var err error
		tickCumulatives[i], spls[i], err = r.ObserveSingle(time, ago, tick, index, liquidity, cardinality)
		if err != nil {
			return nil, nil, err
		}
	}
	return tickCumulatives, spls, nil
}

func (r *Ring) surroundingObservations(
	time uint64, target uint64,
	tick int, index uint16,
	liquidity *uint256.Int,
	cardinality uint16,
) (Observation, Observation, error) {
	beforeOrAt := r.At(index)
	if beforeOrAt.BlockTimestamp <= target {
		if beforeOrAt.BlockTimestamp == target {
			return beforeOrAt, Observation{}, nil
		}
		// Newest stored observation is older than the target: the other
		// bound is the counterfactual observation at the target itself.
		return beforeOrAt, transform(beforeOrAt, target, tick, liquidity), nil
	}

	// Oldest observation.
	oldest := r.At((index + 1) % cardinality)
	if !oldest.Initialized {
		oldest = r.At(0)
	}
	if target < oldest.BlockTimestamp {
		return Observation{}, Observation{}, ErrTargetTooOld
	}

	return r.binarySearch(target, index, cardinality)
}

func (r *Ring) binarySearch(target uint64, index uint16, cardinality uint16) (Observation, Observation, error) {
	l := (uint64(index) + 1) % uint64(cardinality)
	rr := l + uint64(cardinality) - 1

	for {
		i := (l + rr) / 2
		beforeOrAt := r.At(uint16(i % uint64(cardinality)))
		if !beforeOrAt.Initialized {
			// Hit an unpopulated slot; keep searching the newer half.
			l = i + 1
			continue
		}

		atOrAfter := r.At(uint16((i + 1) % uint64(cardinality)))
		if beforeOrAt.BlockTimestamp <= target && target <= atOrAfter.BlockTimestamp {
			return beforeOrAt, atOrAfter, nil
		}

		if beforeOrAt.BlockTimestamp > target {
			rr = i - 1
		} else {
			l = i + 1
		}
	}
}
