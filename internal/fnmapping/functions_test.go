package fnmapping

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trailofbits/taintdag/internal/stringtable"
)

func newFunctions(t *testing.T) *Functions {
	t.Helper()
	strTbl := stringtable.New(make([]byte, 4096), nil)
	fns, err := New(make([]byte, 64*8), strTbl)
	require.NoError(t, err)
	return fns
}

// TestAddMappingInternsByIdentity verifies repeated calls with the same
// name resolve to the same index rather than appending duplicates.
func TestAddMappingInternsByIdentity(t *testing.T) {
	fns := newFunctions(t)

	idx1, ok := fns.AddMapping("main")
	require.True(t, ok)

	idx2, ok := fns.AddMapping("main")
	require.True(t, ok)
	require.Equal(t, idx1, idx2)

	idx3, ok := fns.AddMapping("helper")
	require.True(t, ok)
	require.NotEqual(t, idx1, idx3)
}

// TestFunctionsNameResolves verifies Get+Name round-trips the interned
// name.
func TestFunctionsNameResolves(t *testing.T) {
	fns := newFunctions(t)

	idx, _ := fns.AddMapping("foo")
	entry, ok := fns.Get(idx)
	require.True(t, ok)
	require.Equal(t, "foo", fns.Name(entry))
}
