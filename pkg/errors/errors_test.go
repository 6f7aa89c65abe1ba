package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewCapacityExhaustedErrorCarriesSectionAndCapacity verifies the
// constructor's fields round-trip through their accessors.
func TestNewCapacityExhaustedErrorCarriesSectionAndCapacity(t *testing.T) {
	err := NewCapacityExhaustedError("labels", 1024)

	require.Equal(t, "labels", err.Section())
	require.Equal(t, 1024, err.Capacity())
	require.Equal(t, ErrorCodeCapacityExhausted, err.Code())
}

// TestEngineErrorFluentBuildersChain verifies the With* methods can be
// chained and still return an *EngineError.
func TestEngineErrorFluentBuildersChain(t *testing.T) {
	err := NewEngineError(nil, ErrorCodeInternal, "boom").
		WithSection("sources").
		WithOperation("add_source").
		WithLabel(7).
		WithCapacity(256)

	require.Equal(t, "sources", err.Section())
	require.Equal(t, "add_source", err.Operation())
	require.EqualValues(t, 7, err.Label())
	require.Equal(t, 256, err.Capacity())
}

// TestEngineErrorUnwrapsToCause verifies errors.Is/As can see through an
// EngineError to the underlying cause.
func TestEngineErrorUnwrapsToCause(t *testing.T) {
	cause := errors.New("disk gone")
	err := NewEngineError(cause, ErrorCodeIO, "wrapped")

	require.ErrorIs(t, err, cause)

	var ee *EngineError
	require.True(t, errors.As(err, &ee))
	require.Equal(t, ErrorCodeIO, ee.Code())
}

// TestNewLabelOutOfRangeErrorRecordsOperation verifies the convenience
// constructor populates both the label and operation fields.
func TestNewLabelOutOfRangeErrorRecordsOperation(t *testing.T) {
	err := NewLabelOutOfRangeError(42, "union_taint")

	require.EqualValues(t, 42, err.Label())
	require.Equal(t, "union_taint", err.Operation())
	require.Equal(t, ErrorCodeLabelOutOfRange, err.Code())
}

// TestWithDetailIsLazilyInitialized verifies Details returns nil until the
// first WithDetail call, and holds the value afterward.
func TestWithDetailIsLazilyInitialized(t *testing.T) {
	base := NewBaseError(nil, ErrorCodeInternal, "msg")
	require.Nil(t, base.Details())

	base.WithDetail("word", uint64(7))
	require.Equal(t, uint64(7), base.Details()["word"])
}

// TestIsCapacityExhaustedDistinguishesErrorCode verifies IsCapacityExhausted
// only matches a capacity-exhaustion error, not other EngineError codes or
// plain errors, and sees through wrapping.
func TestIsCapacityExhaustedDistinguishesErrorCode(t *testing.T) {
	require.True(t, IsCapacityExhausted(NewCapacityExhaustedError("labels", 10)))
	require.False(t, IsCapacityExhausted(NewLabelOutOfRangeError(1, "union_label")))
	require.False(t, IsCapacityExhausted(errors.New("plain")))
	require.False(t, IsCapacityExhausted(nil))
}
