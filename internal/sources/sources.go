// Package sources maintains the table of taint-source descriptors: one
// entry per open()ed descriptor (or per synthetic, fd-less source such as
// argv), each naming itself through an interned string and, for
// descriptor-backed sources, recording the descriptor and its size.
package sources

import (
	"github.com/trailofbits/taintdag/internal/section"
	"github.com/trailofbits/taintdag/internal/stringtable"
)

// InvalidFD marks a source with no underlying file descriptor.
const InvalidFD int32 = -1

// InvalidSize marks a source whose size could not be determined.
const InvalidSize uint64 = ^uint64(0)

// Entry is one source's on-disk record. Fields are ordered largest first
// to avoid padding: 8-byte Size, then the two 4-byte fields.
type Entry struct {
	Size         uint64
	StringOffset uint32
	FD           int32
}

// Table is the Sources section.
type Table struct {
	entries *section.Fixed[Entry]
	strings *stringtable.Table
}

// New wraps span in a Sources table. strings is the container's shared
// StringTable, used to intern each source's name.
func New(span []byte, strings *stringtable.Table) (*Table, error) {
	entries, err := section.NewFixed[Entry](span)
	if err != nil {
		return nil, err
	}
	return &Table{entries: entries, strings: strings}, nil
}

// Size reports bytes used so far, for FileHeader bookkeeping.
func (t *Table) Size() uint32 {
	return t.entries.Size()
}

// AddSource interns name and appends a new source entry. ok is false if
// either the string table or the entry array has no room left. The table
// itself never treats this as fatal; the caller decides (the engine facade
// exits).
func (t *Table) AddSource(name string, fd int32, size uint64) (index uint32, ok bool) {
	nameOffset, ok := t.strings.AddString(name)
	if !ok {
		return 0, false
	}
	return t.entries.Construct(Entry{Size: size, StringOffset: nameOffset, FD: fd})
}

// MappingIndex returns the index of the most recently added entry whose FD
// matches fd, so that closing and reopening the same descriptor resolves
// to the latest open.
func (t *Table) MappingIndex(fd int32) (index uint32, ok bool) {
	return t.entries.ReverseFind(func(e Entry) bool { return e.FD == fd })
}

// Get returns the entry at idx.
func (t *Table) Get(idx uint32) (Entry, bool) {
	return t.entries.Index(idx)
}

// Name resolves an entry's interned name.
func (t *Table) Name(e Entry) string {
	return t.strings.FromOffset(e.StringOffset)
}
