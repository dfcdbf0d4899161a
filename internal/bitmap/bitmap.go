// Package bitmap maintains a packed existence index over initialized
// ticks. Each 256-bit word covers 256 consecutive tick-spacing multiples,
// so the next initialized tick in either direction is found with a single
// masked word scan.
package bitmap

import (
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

// Bitmap maps word positions to 256-bit occupancy words. A set bit b of
// word w means tick (w*256+b)*spacing is initialized.
type Bitmap struct {
	words map[int32]*uint256.Int
}

func New() *Bitmap {
	return &Bitmap{words: make(map[int32]*uint256.Int)}
}

// Position splits a compressed tick into its word and bit coordinates.
// The arithmetic shift keeps floor semantics for negative ticks.
func Position(tick int) (wordPos int32, bitPos uint) {
	wordPos = int32(tick >> 8)
	bitPos = uint(tick & 0xff)
	return wordPos, bitPos
}

// FlipTick toggles the initialized bit for tick, which must be a multiple
// of spacing.
func (b *Bitmap) FlipTick(tick, spacing int) error {
	if tick%spacing != 0 {
		return fmt.Errorf("bitmap: tick %d is not a multiple of spacing %d", tick, spacing)
	}
	wordPos, bitPos := Position(tick / spacing)
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), bitPos)
	word, ok := b.words[wordPos]
	if !ok {
		word = new(uint256.Int)
		b.words[wordPos] = word
	}
	word.Xor(word, mask)
	if word.IsZero() {
		delete(b.words, wordPos)
	}
	return nil
}

// NextInitializedTickWithinOneWord returns the next initialized tick at
// most one word away from tick in the given direction. When lte is true
// the search includes tick itself and moves toward lower ticks; otherwise
// it starts strictly above tick. The boolean reports whether the returned
// tick is initialized; if not, it is the scanned word's boundary and the
// caller is expected to continue from there.
func (b *Bitmap) NextInitializedTickWithinOneWord(tick, spacing int, lte bool) (int, bool) {
	compressed := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		compressed-- // round toward negative infinity
	}

	if lte {
		wordPos, bitPos := Position(compressed)
		// Bits at or below bitPos.
		mask := new(uint256.Int).Lsh(uint256.NewInt(1), bitPos)
		mask.Add(new(uint256.Int).Sub(mask, uint256.NewInt(1)), mask)
		masked := b.maskedWord(wordPos, mask)

		if !masked.IsZero() {
			next := (int(wordPos)*256 + int(msb(masked))) * spacing
			return next, true
		}
		next := (int(wordPos)*256 + 0) * spacing
		return next, false
	}

	wordPos, bitPos := Position(compressed + 1)
	// Bits at or above bitPos.
	mask := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), bitPos), uint256.NewInt(1))
	mask.Not(mask)
	masked := b.maskedWord(wordPos, mask)

	if !masked.IsZero() {
		next := (int(wordPos)*256 + int(lsb(masked))) * spacing
		return next, true
	}
	next := (int(wordPos)*256 + 255) * spacing
	return next, false
}

func (b *Bitmap) maskedWord(wordPos int32, mask *uint256.Int) *uint256.Int {
	word, ok := b.words[wordPos]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).And(word, mask)
}

// IsSet reports whether the bit for the given tick is set.
func (b *Bitmap) IsSet(tick, spacing int) bool {
	if tick%spacing != 0 {
		return false
	}
	wordPos, bitPos := Position(tick / spacing)
	word, ok := b.words[wordPos]
	if !ok {
		return false
	}
	return word[bitPos/64]>>(bitPos%64)&1 == 1
}

// msb returns the index of the highest set bit. x must be nonzero.
func msb(x *uint256.Int) uint {
	for i := 3; i >= 0; i-- {
		if x[i] != 0 {
			return uint(i*64 + 63 - bits.LeadingZeros64(x[i]))
		}
	}
	return 0
}

// lsb returns the index of the lowest set bit. x must be nonzero.
func lsb(x *uint256.Int) uint {
	for i := 0; i < 4; i++ {
		if x[i] != 0 {
			return uint(i*64 + bits.TrailingZeros64(x[i]))
		}
	}
	return 0
}
