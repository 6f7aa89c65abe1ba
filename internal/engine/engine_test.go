package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	tdagerrors "github.com/trailofbits/taintdag/pkg/errors"
	"github.com/trailofbits/taintdag/pkg/logger"
	"github.com/trailofbits/taintdag/pkg/options"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return newTestEngineWithOpts(t, func(opts *options.Options) {})
}

// newTestEngineWithOpts builds a test engine from the same small default
// capacities as newTestEngine, letting a caller shrink one further to
// exercise a specific section's exhaustion path.
func newTestEngineWithOpts(t *testing.T, tweak func(*options.Options)) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tdag")

	opts := options.NewDefaultOptions()
	opts.TDAGPath = path
	opts.MaxLabel = 1024
	opts.SourceCapacity = 16
	opts.FunctionCapacity = 16
	opts.SinkLogCapacity = 64
	opts.BasicBlockCapacity = 64
	opts.EventsCapacity = 4096
	opts.StringTableCapacity = 4096
	tweak(&opts)

	e, err := New(opts, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// TestSourceEntryReuse verifies reopening the same fd registers a new
// source entry, and MappingIndex resolves to the most recent one.
func TestSourceEntryReuse(t *testing.T) {
	e := newTestEngine(t)

	idxA, ok := e.OpenFile(5, "a")
	require.True(t, ok)
	require.EqualValues(t, 0, idxA)

	idxB, ok := e.OpenFile(5, "b")
	require.True(t, ok)
	require.EqualValues(t, 1, idxB)

	found, ok := e.sources.MappingIndex(5)
	require.True(t, ok)
	require.EqualValues(t, 1, found)

	entry, ok := e.sources.Get(found)
	require.True(t, ok)
	require.Equal(t, "b", e.sources.Name(entry))
}

// TestSinkLogging verifies tainting a 3-byte sink range with a single
// label produces exactly three sink records, one per byte, in order.
func TestSinkLogging(t *testing.T) {
	e := newTestEngine(t)

	_, ok := e.OpenFile(9, "sink-path")
	require.True(t, ok)

	require.NoError(t, e.TaintSinkLabel(9, 100, 5, 3))

	entries := e.sinkLog.All()
	require.Len(t, entries, 3)
	for i, rec := range entries {
		require.EqualValues(t, 100+i, rec.Offset)
		require.EqualValues(t, 5, rec.Label)
	}
}

// TestSourceTaintStampsShadowMemory verifies SourceTaint allocates one
// label per byte and records each byte's label in shadow memory.
func TestSourceTaintStampsShadowMemory(t *testing.T) {
	e := newTestEngine(t)

	_, ok := e.OpenFile(3, "input")
	require.True(t, ok)

	buf := make([]byte, 4)
	first, end, ok := e.SourceTaint(3, buf, 0, 4)
	require.True(t, ok)
	require.Equal(t, first+4, end)

	for i := 0; i < 4; i++ {
		require.Equal(t, first+uint32(i), e.shadow.GetLabel(byteAddr(buf, uint32(i))))
		require.True(t, e.bitmap.IsSet(first+uint32(i)))
	}
}

// TestFunctionEntryExitLogsEvents verifies FunctionEntry interns the name
// and both calls append the expected event stream.
func TestFunctionEntryExitLogsEvents(t *testing.T) {
	e := newTestEngine(t)

	idx, err := e.FunctionEntry("main")
	require.NoError(t, err)

	require.NoError(t, e.FunctionExit(idx))

	records := e.events.All()
	require.Len(t, records, 2)
	require.Equal(t, idx, records[0].Function)
	require.Equal(t, idx, records[1].Function)
}

// TestLogConditionalBranchMarksControlFlowAndLogsPair verifies a
// conditional branch both flags the label's CF bit and records it against
// the currently executing basic block.
func TestLogConditionalBranchMarksControlFlowAndLogsPair(t *testing.T) {
	e := newTestEngine(t)

	_, ok := e.OpenFile(1, "input")
	require.True(t, ok)

	buf := make([]byte, 2)
	first, _, ok := e.SourceTaint(1, buf, 0, 2)
	require.True(t, ok)

	require.NoError(t, e.LogBasicBlock(7))
	require.NoError(t, e.LogConditionalBranch(first))

	taint, err := e.labels.ReadLabel(first)
	require.NoError(t, err)
	require.True(t, taint.AffectsControlFlow())

	pairs := e.controlFlow.All()
	require.Len(t, pairs, 1)
	require.Equal(t, first, pairs[0].Label)
	require.EqualValues(t, 7, pairs[0].BasicBlock)
}

// TestCapacityExhaustionRoutesThroughExitFunc verifies that running a
// bounded section out of room calls the pluggable exit hook instead of
// merely returning a recoverable error, for every capacity-exhaustion path
// the engine facade exposes.
func TestCapacityExhaustionRoutesThroughExitFunc(t *testing.T) {
	oldExit := tdagerrors.ExitFunc
	t.Cleanup(func() { tdagerrors.ExitFunc = oldExit })

	withExitCapture := func(t *testing.T) *int {
		calls := 0
		tdagerrors.ExitFunc = func(code int) { calls++ }
		return &calls
	}

	t.Run("UnionLabels", func(t *testing.T) {
		calls := withExitCapture(t)
		// MaxLabel 4 leaves exactly 5 label slots (0 plus 4 more); filling
		// all 4 with source labels leaves no room for the union result.
		e := newTestEngineWithOpts(t, func(o *options.Options) { o.MaxLabel = 4 })
		_, ok := e.OpenFile(1, "input")
		require.True(t, ok)
		buf := make([]byte, 4)
		first, _, ok := e.SourceTaint(1, buf, 0, 4)
		require.True(t, ok)
		require.Equal(t, 0, *calls)

		// first and first+2 are non-adjacent, so the union can't reuse an
		// existing label and must construct a new one.
		_, err := e.UnionLabels(first, first+2)
		require.Error(t, err)
		require.True(t, tdagerrors.IsCapacityExhausted(err))
		require.Equal(t, 1, *calls)
	})

	t.Run("UnionLabelsOutOfRangeIsNotFatal", func(t *testing.T) {
		calls := withExitCapture(t)
		e := newTestEngine(t)
		_, ok := e.OpenFile(1, "input")
		require.True(t, ok)
		buf := make([]byte, 2)
		first, _, ok := e.SourceTaint(1, buf, 0, 2)
		require.True(t, ok)

		_, err := e.UnionLabels(first, first+999999)
		require.Error(t, err)
		require.Equal(t, 0, *calls)
	})

	t.Run("FunctionEntry", func(t *testing.T) {
		calls := withExitCapture(t)
		e := newTestEngineWithOpts(t, func(o *options.Options) { o.FunctionCapacity = 1 })

		_, err := e.FunctionEntry("first")
		require.NoError(t, err)

		_, err = e.FunctionEntry("second")
		require.Error(t, err)
		require.True(t, tdagerrors.IsCapacityExhausted(err))
		require.Equal(t, 1, *calls)
	})

	t.Run("LogBasicBlock", func(t *testing.T) {
		calls := withExitCapture(t)
		e := newTestEngineWithOpts(t, func(o *options.Options) { o.BasicBlockCapacity = 1 })

		require.NoError(t, e.LogBasicBlock(1))

		err := e.LogBasicBlock(2)
		require.Error(t, err)
		require.True(t, tdagerrors.IsCapacityExhausted(err))
		require.Equal(t, 1, *calls)
	})
}

// TestCloseIsIdempotentAndFinalizesHeader verifies Close finalizes the
// header without error after activity on the container, and that a second
// Close is a no-op that also returns nil.
func TestCloseIsIdempotentAndFinalizesHeader(t *testing.T) {
	e := newTestEngine(t)
	_, ok := e.OpenFile(1, "input")
	require.True(t, ok)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}
