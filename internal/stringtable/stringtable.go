// Package stringtable interns length-prefixed strings into a byte-stream
// section, addressable by the byte offset of their length prefix. Sources
// and Functions both intern their names here, sharing the section's lock
// only for the duration of one allocation.
package stringtable

import (
	"encoding/binary"

	"github.com/trailofbits/taintdag/internal/section"
	"go.uber.org/zap"
)

// MaxEntrySize is the longest string (in bytes, before any truncation) the
// table will store, bounded by the 16-bit length prefix.
const MaxEntrySize = 1<<16 - 1

const lengthPrefixSize = 2 // sizeof(uint16)

// Table is a StringTable section.
type Table struct {
	base *section.Base
	log  *zap.SugaredLogger
}

// New wraps span (the section's byte range within the container mapping)
// in a Table.
func New(span []byte, log *zap.SugaredLogger) *Table {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Table{base: section.NewBase(span), log: log}
}

// Size reports the number of bytes used so far, for FileHeader bookkeeping.
func (t *Table) Size() uint32 {
	return t.base.Size()
}

// AddString interns s, returning the byte offset of its length prefix
// (stable for the lifetime of the process). Strings longer than
// MaxEntrySize are truncated, with a warning logged, rather than rejected
// outright — the caller still gets a usable (if shortened) entry. ok is
// false only if the section has no room left for even a truncated entry.
func (t *Table) AddString(s string) (offset uint32, ok bool) {
	if len(s) > MaxEntrySize {
		t.log.Warnw("string table entry too long, truncating",
			"length", len(s), "max", MaxEntrySize)
		s = s[:MaxEntrySize]
	}

	allocated := allocatedLen(uint32(len(s)))
	ctx, ok := t.base.Write(allocated)
	if !ok {
		return 0, false
	}
	defer ctx.Release()

	binary.LittleEndian.PutUint16(ctx.Buf[0:lengthPrefixSize], uint16(len(s)))
	copy(ctx.Buf[lengthPrefixSize:], s)
	return ctx.Offset, true
}

// FromOffset decodes the string stored at offset (as returned by AddString).
func (t *Table) FromOffset(offset uint32) string {
	buf := t.base.At(offset)
	length := binary.LittleEndian.Uint16(buf[0:lengthPrefixSize])
	return string(buf[lengthPrefixSize : lengthPrefixSize+uint32(length)])
}

// allocatedLen is the total byte span a string of the given length
// occupies, rounded up so the next entry's length prefix starts 2-byte
// aligned.
func allocatedLen(length uint32) uint32 {
	total := lengthPrefixSize + length
	return (total + 1) &^ 1
}

// Iterator walks every string in the table, in insertion order, under a
// single consistent snapshot of the section's current size.
type Iterator struct {
	t      *Table
	offset uint32
	end    uint32
}

// Iterate returns an Iterator over every string currently stored.
func (t *Table) Iterate() *Iterator {
	return &Iterator{t: t, end: t.Size()}
}

// Next returns the next string and true, or ("", false) once exhausted.
func (it *Iterator) Next() (string, bool) {
	if it.offset >= it.end {
		return "", false
	}
	s := it.t.FromOffset(it.offset)
	it.offset += allocatedLen(uint32(len(s)))
	return s, true
}
