// Package encoding implements the bijection between the Taint sum type and
// the 64-bit storage word each label occupies in the Labels section. It is
// pure: no allocation, no I/O, no locking — every function is a closed-form
// transformation on a uint64 or on the small Taint structs.
//
// Bit layout of a StorageWord, MSB to LSB:
//
//	bit 63: is_source
//	bit 62: affects_control_flow
//	is_source=1: bits 61..8 = source offset (54 bits), bits 7..0 = source index (8 bits)
//	is_source=0: bits 61..31 = A (31 bits), bits 30..0 = B (31 bits)
//	             A < B => RangeTaint{first: A, last: B}
//	             A > B => UnionTaint{higher: A, lower: B}
//	             A == B is invalid.
package encoding

import "fmt"

// Label identifies a taint value; it doubles as an index into the Labels
// section. Label 0 is reserved and means "untainted".
type Label = uint32

// StorageWord is the on-disk/in-memory representation of one label's Taint.
type StorageWord = uint64

// SourceIndex identifies a taint source (at most 256 distinct sources).
type SourceIndex = uint8

// SourceOffset is a byte offset into a taint source, up to 2^54-1.
type SourceOffset = uint64

const (
	// MaxLabel is the highest label value the 31-bit label fields can hold.
	MaxLabel Label = 1<<31 - 1

	// MaxSourceOffset is the highest offset the 54-bit offset field can hold.
	MaxSourceOffset SourceOffset = 1<<54 - 1

	bitIsSource = 63
	bitAffectsCF = 62

	maskIsSource StorageWord = 1 << bitIsSource
	maskCF       StorageWord = 1 << bitAffectsCF

	offsetShift = 8
	offsetBits  = 54
	offsetMask  StorageWord = (1<<offsetBits - 1) << offsetShift

	indexBits = 8
	indexMask StorageWord = 1<<indexBits - 1

	valueBits = 31
	aShift    = 31
	aMask     StorageWord = (1<<valueBits - 1) << aShift
	bMask     StorageWord = 1<<valueBits - 1
)

// Taint is the sum type every label decodes to: exactly one of SourceTaint,
// RangeTaint, or UnionTaint.
type Taint interface {
	isTaint()
	// AffectsControlFlow reports whether this variant's CF bit was set.
	AffectsControlFlow() bool
}

// taintBase carries the CF flag shared by all three variants.
type taintBase struct {
	cf bool
}

func (taintBase) isTaint() {}

func (t taintBase) AffectsControlFlow() bool { return t.cf }

// SourceTaint refers directly to one input byte.
type SourceTaint struct {
	taintBase
	Index  SourceIndex
	Offset SourceOffset
}

// RangeTaint represents the closed label interval [First, Last].
// Invariant: First < Last.
type RangeTaint struct {
	taintBase
	First Label
	Last  Label
}

// UnionTaint represents the unordered pair {Higher, Lower}.
// Invariant: Higher > Lower.
type UnionTaint struct {
	taintBase
	Higher Label
	Lower  Label
}

// Encode packs a Taint into its StorageWord representation.
func Encode(t Taint) StorageWord {
	var w StorageWord
	if t.AffectsControlFlow() {
		w |= maskCF
	}

	switch v := t.(type) {
	case SourceTaint:
		w |= maskIsSource
		w |= (StorageWord(v.Offset) << offsetShift) & offsetMask
		w |= StorageWord(v.Index) & indexMask
	case RangeTaint:
		w |= (StorageWord(v.First) << aShift) & aMask
		w |= StorageWord(v.Last) & bMask
	case UnionTaint:
		w |= (StorageWord(v.Higher) << aShift) & aMask
		w |= StorageWord(v.Lower) & bMask
	default:
		panic(fmt.Sprintf("encoding: unknown taint variant %T", t))
	}
	return w
}

// Decode unpacks a StorageWord into its Taint representation. It returns an
// error if the word encodes A == B, which is never a valid non-source taint.
func Decode(w StorageWord) (Taint, error) {
	cf := w&maskCF != 0

	if w&maskIsSource != 0 {
		offset := SourceOffset((w & offsetMask) >> offsetShift)
		index := SourceIndex(w & indexMask)
		return SourceTaint{taintBase{cf}, index, offset}, nil
	}

	a := Label((w & aMask) >> aShift)
	b := Label(w & bMask)

	switch {
	case a < b:
		return RangeTaint{taintBase{cf}, a, b}, nil
	case a > b:
		return UnionTaint{taintBase{cf}, a, b}, nil
	default:
		return nil, fmt.Errorf("encoding: corrupt storage word %#016x: A == B == %d", w, a)
	}
}

// IsSourceTaint reports whether the word's is_source bit is set, without a
// full decode.
func IsSourceTaint(w StorageWord) bool {
	return w&maskIsSource != 0
}

// CheckAffectsControlFlow reports whether the word's affects_control_flow
// bit is set.
func CheckAffectsControlFlow(w StorageWord) bool {
	return w&maskCF != 0
}

// AddAffectsControlFlow returns w with its affects_control_flow bit set.
func AddAffectsControlFlow(w StorageWord) StorageWord {
	return w | maskCF
}

// EqualIgnoreCF reports whether two words are equal after masking out the
// affects_control_flow bit, used by the duplicate-suppression scan in the
// Labels section.
func EqualIgnoreCF(w1, w2 StorageWord) bool {
	return (w1 &^ maskCF) == (w2 &^ maskCF)
}
