// Package fnmapping implements the Functions and Events sections: the
// table of instrumented function names (interned once per distinct name,
// accelerated by an in-memory hash so repeat entries never rescan the
// string table) and the variable-length stream of function entry/exit/
// control-flow events recorded against them.
package fnmapping

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/trailofbits/taintdag/internal/section"
	"github.com/trailofbits/taintdag/internal/stringtable"
)

// FunctionIndex identifies one interned function name.
type FunctionIndex = uint32

// Entry is one function's on-disk record.
type Entry struct {
	NameOffset uint32
	NameLen    uint32
}

// Functions is the Functions section: a FixedSizeAlloc<Entry> plus an
// in-memory name->index hash so AddMapping is idempotent on name identity
// without rescanning the string table on every call.
type Functions struct {
	entries *section.Fixed[Entry]
	strings *stringtable.Table

	mu    sync.Mutex
	index map[uint64][]uint32 // xxhash(name) -> candidate indices, for collision resolution
}

// New wraps span in a Functions table. strings is the container's shared
// StringTable.
func New(span []byte, strings *stringtable.Table) (*Functions, error) {
	entries, err := section.NewFixed[Entry](span)
	if err != nil {
		return nil, err
	}
	return &Functions{entries: entries, strings: strings, index: make(map[uint64][]uint32)}, nil
}

// Size reports bytes used so far, for FileHeader bookkeeping.
func (f *Functions) Size() uint32 { return f.entries.Size() }

// AddMapping interns name, returning its existing index if the name was
// already seen, or appending a new entry and returning its index otherwise.
// ok is false only if the section or string table is exhausted.
func (f *Functions) AddMapping(name string) (idx FunctionIndex, ok bool) {
	h := xxhash.Sum64String(name)

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, candidate := range f.index[h] {
		e, found := f.entries.Index(candidate)
		if found && f.Name(e) == name {
			return candidate, true
		}
	}

	nameOffset, ok := f.strings.AddString(name)
	if !ok {
		return 0, false
	}
	newIdx, ok := f.entries.Construct(Entry{NameOffset: nameOffset, NameLen: uint32(len(name))})
	if !ok {
		return 0, false
	}
	f.index[h] = append(f.index[h], newIdx)
	return newIdx, true
}

// Get returns the entry at idx.
func (f *Functions) Get(idx FunctionIndex) (Entry, bool) {
	return f.entries.Index(idx)
}

// Name resolves an entry's interned name.
func (f *Functions) Name(e Entry) string {
	return f.strings.FromOffset(e.NameOffset)
}
