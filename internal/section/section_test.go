package section

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBaseWriteAdvancesCursor verifies successive writes are laid out back
// to back with no gaps.
func TestBaseWriteAdvancesCursor(t *testing.T) {
	b := NewBase(make([]byte, 16))

	ctx1, ok := b.Write(4)
	require.True(t, ok)
	require.EqualValues(t, 0, ctx1.Offset)
	ctx1.Release()

	ctx2, ok := b.Write(4)
	require.True(t, ok)
	require.EqualValues(t, 4, ctx2.Offset)
	ctx2.Release()

	require.EqualValues(t, 8, b.Size())
}

// TestBaseWriteRejectsOverflow verifies a write that would exceed the span
// fails rather than writing out of bounds.
func TestBaseWriteRejectsOverflow(t *testing.T) {
	b := NewBase(make([]byte, 4))

	_, ok := b.Write(8)
	require.False(t, ok)
	require.EqualValues(t, 0, b.Size())
}

// TestBaseWriteSerializesConcurrentCallers verifies concurrent writers
// never observe overlapping offsets.
func TestBaseWriteSerializesConcurrentCallers(t *testing.T) {
	const n = 64
	b := NewBase(make([]byte, n))

	seen := make(map[uint32]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, ok := b.Write(1)
			require.True(t, ok)
			mu.Lock()
			require.False(t, seen[ctx.Offset], "offset %d claimed twice", ctx.Offset)
			seen[ctx.Offset] = true
			mu.Unlock()
			ctx.Release()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
}
