package stringtable

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAddStringRoundTrip verifies a stored string decodes back unchanged.
func TestAddStringRoundTrip(t *testing.T) {
	tbl := New(make([]byte, 64), nil)

	offset, ok := tbl.AddString("hello")
	require.True(t, ok)
	require.Equal(t, "hello", tbl.FromOffset(offset))
}

// TestAddStringAlignsNextEntry verifies consecutive entries start on 2-byte
// boundaries regardless of the previous entry's length.
func TestAddStringAlignsNextEntry(t *testing.T) {
	tbl := New(make([]byte, 64), nil)

	off1, ok := tbl.AddString("odd") // length 3: prefix(2)+3 = 5, rounds to 6
	require.True(t, ok)
	off2, ok := tbl.AddString("next")
	require.True(t, ok)

	require.EqualValues(t, 0, off1)
	require.EqualValues(t, 6, off2)
	require.Equal(t, "next", tbl.FromOffset(off2))
}

// TestAddStringTruncatesOversizedEntry verifies an entry longer than
// MaxEntrySize is stored truncated rather than rejected.
func TestAddStringTruncatesOversizedEntry(t *testing.T) {
	tbl := New(make([]byte, MaxEntrySize+64), nil)

	huge := strings.Repeat("x", MaxEntrySize+10)
	offset, ok := tbl.AddString(huge)
	require.True(t, ok)

	got := tbl.FromOffset(offset)
	require.Len(t, got, MaxEntrySize)
}

// TestAddStringFailsWhenFull verifies running out of room returns ok=false
// rather than a fatal error — string table exhaustion is transient, not
// fatal.
func TestAddStringFailsWhenFull(t *testing.T) {
	tbl := New(make([]byte, 4), nil)

	_, ok := tbl.AddString("toolong")
	require.False(t, ok)
}

// TestIterate verifies Iterate walks every stored string in insertion
// order.
func TestIterate(t *testing.T) {
	tbl := New(make([]byte, 64), nil)
	tbl.AddString("a")
	tbl.AddString("bb")
	tbl.AddString("ccc")

	var got []string
	it := tbl.Iterate()
	for {
		s, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, s)
	}

	require.Equal(t, []string{"a", "bb", "ccc"}, got)
}
