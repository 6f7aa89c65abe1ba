package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSourceTaintRoundTrip verifies a SourceTaint survives Encode/Decode.
func TestSourceTaintRoundTrip(t *testing.T) {
	want := SourceTaint{Index: 7, Offset: 12345}
	got, err := Decode(Encode(want))

	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestRangeTaintRoundTrip verifies a RangeTaint survives Encode/Decode.
func TestRangeTaintRoundTrip(t *testing.T) {
	want := RangeTaint{First: 1, Last: 3}
	got, err := Decode(Encode(want))

	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestUnionTaintRoundTrip verifies a UnionTaint survives Encode/Decode.
func TestUnionTaintRoundTrip(t *testing.T) {
	want := UnionTaint{Higher: 9, Lower: 3}
	got, err := Decode(Encode(want))

	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestDecodeRejectsEqualAB verifies a storage word with A == B (the
// invalid encoding) fails to decode rather than silently returning a
// Range or Union taint. This is scenario S5.
func TestDecodeRejectsEqualAB(t *testing.T) {
	var w StorageWord
	w |= (StorageWord(7) << aShift) & aMask
	w |= StorageWord(7) & bMask

	_, err := Decode(w)
	require.Error(t, err)
}

// TestAffectsControlFlowBitSurvivesRoundTrip verifies the CF bit and the
// underlying taint decode independently of each other.
func TestAffectsControlFlowBitSurvivesRoundTrip(t *testing.T) {
	want := RangeTaint{taintBase{cf: true}, 1, 3}
	w := Encode(want)

	require.True(t, CheckAffectsControlFlow(w))

	got, err := Decode(w)
	require.NoError(t, err)
	require.True(t, got.AffectsControlFlow())
	require.Equal(t, want, got)
}

// TestEqualIgnoreCF verifies two words differing only in their CF bit
// compare equal.
func TestEqualIgnoreCF(t *testing.T) {
	plain := Encode(RangeTaint{First: 1, Last: 3})
	marked := AddAffectsControlFlow(plain)

	require.NotEqual(t, plain, marked)
	require.True(t, EqualIgnoreCF(plain, marked))
}

// TestIsSourceTaint verifies the fast is_source check agrees with a full
// decode.
func TestIsSourceTaint(t *testing.T) {
	sourceWord := Encode(SourceTaint{Index: 1, Offset: 0})
	rangeWord := Encode(RangeTaint{First: 1, Last: 2})

	require.True(t, IsSourceTaint(sourceWord))
	require.False(t, IsSourceTaint(rangeWord))
}
