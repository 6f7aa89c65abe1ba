package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewNamesTheLoggerAfterItsService verifies the returned logger is
// usable and carries the requested service name.
func TestNewNamesTheLoggerAfterItsService(t *testing.T) {
	log, err := New("engine")
	require.NoError(t, err)
	require.NotNil(t, log)
	require.Equal(t, "engine", log.Desugar().Name())

	require.NotPanics(t, func() {
		log.Infow("constructed", "service", "engine")
	})
}

// TestNewNopDiscardsWithoutPanicking verifies the no-op logger is safe to
// call and produces no observable side effect.
func TestNewNopDiscardsWithoutPanicking(t *testing.T) {
	log := NewNop()
	require.NotNil(t, log)

	require.NotPanics(t, func() {
		log.Errorw("should be discarded", "key", "value")
	})
}
