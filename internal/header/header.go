// Package header lays out and maintains the FileHeader that prefixes every
// TDAG container: a magic, a section count, and one SectionMeta record per
// section recording its tag, alignment, offset, and (at close time) the
// number of bytes it actually used.
package header

import (
	"encoding/binary"
	"fmt"
)

// Section tags, assigned in the engine facade's declaration order. The
// original C/C++ implementation this format derives from reused tag
// numbers across mutually-exclusive design variants (Events and the
// control-flow log both claimed tag 8, for instance); this container
// assigns each of its nine sections a distinct tag.
const (
	TagSources          uint32 = 1
	TagLabels           uint32 = 2
	TagStringTable      uint32 = 3
	TagSink             uint32 = 4
	TagSourceLabelIndex uint32 = 5
	TagFunctions        uint32 = 6
	TagEvents           uint32 = 7
	TagBasicBlocks      uint32 = 8
	TagControlFlow      uint32 = 9
)

var magic = [4]byte{'T', 'D', 'A', 'G'}

// Spec describes one section's static layout requirements, supplied by its
// owning package before the container is created.
type Spec struct {
	Tag       uint32
	Align     uint32
	AllocSize uint64
}

// SectionMeta is the on-disk record of one section's placement: its tag and
// alignment (fixed at creation) plus its offset within the file and the
// number of bytes it actually used (the latter finalised at Close).
type SectionMeta struct {
	Tag    uint32
	Align  uint32
	Offset uint64
	Size   uint64
}

const sectionMetaSize = 4 + 4 + 8 + 8 // tag + align + offset + size

// headerFixedSize is the byte size of the magic, magic version, and
// section count fields that precede the SectionMeta array.
const headerFixedSize = 4 + 4 + 2

// Layout computes the byte offset and size of the header itself plus every
// section, in the order specs are given. Offsets are rounded up to each
// section's Align. HeaderSize is always 8-byte aligned so every section's
// own alignment request is satisfiable.
type Layout struct {
	HeaderSize uint64
	Sections   []SectionMeta
	Total      uint64
}

// Plan computes a Layout for the given section specs.
func Plan(specs []Spec) Layout {
	headerSize := alignUp(uint64(headerFixedSize+len(specs)*sectionMetaSize), 8)

	sections := make([]SectionMeta, len(specs))
	cursor := headerSize
	for i, s := range specs {
		cursor = alignUp(cursor, uint64(s.Align))
		sections[i] = SectionMeta{Tag: s.Tag, Align: s.Align, Offset: cursor, Size: s.AllocSize}
		cursor += s.AllocSize
	}

	return Layout{HeaderSize: headerSize, Sections: sections, Total: cursor}
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// Write serialises the header (magic, magic version, section count, and
// every SectionMeta's static fields) into the start of mapping. mapping
// must be at least layout.HeaderSize bytes.
func Write(mapping []byte, layout Layout) error {
	if uint64(len(mapping)) < layout.HeaderSize {
		return fmt.Errorf("header: mapping of %d bytes too small for header of %d bytes", len(mapping), layout.HeaderSize)
	}

	copy(mapping[0:4], magic[:])
	binary.LittleEndian.PutUint32(mapping[4:8], magicVersion(layout.Sections))
	binary.LittleEndian.PutUint16(mapping[8:10], uint16(len(layout.Sections)))

	off := headerFixedSize
	for _, s := range layout.Sections {
		binary.LittleEndian.PutUint32(mapping[off:], s.Tag)
		binary.LittleEndian.PutUint32(mapping[off+4:], s.Align)
		binary.LittleEndian.PutUint64(mapping[off+8:], s.Offset)
		binary.LittleEndian.PutUint64(mapping[off+16:], s.Size)
		off += sectionMetaSize
	}
	return nil
}

// magicVersion computes (sum of section tags) XOR section_count.
func magicVersion(sections []SectionMeta) uint32 {
	var sum uint32
	for _, s := range sections {
		sum += s.Tag
	}
	return sum ^ uint32(len(sections))
}

// Finalize writes each section's actual used size (bytes written, not
// capacity) back into its SectionMeta, called once at container close.
func Finalize(mapping []byte, layout Layout, usedSizes []uint64) error {
	if len(usedSizes) != len(layout.Sections) {
		return fmt.Errorf("header: %d used-size values for %d sections", len(usedSizes), len(layout.Sections))
	}

	off := headerFixedSize
	for i, used := range usedSizes {
		_ = layout.Sections[i]
		binary.LittleEndian.PutUint64(mapping[off+16:], used)
		off += sectionMetaSize
	}
	return nil
}

// Read parses the header at the start of mapping, validating the magic and
// magic version. It is used by tests and by any future offline reader.
func Read(mapping []byte) (Layout, error) {
	if len(mapping) < headerFixedSize {
		return Layout{}, fmt.Errorf("header: mapping too small to contain a header")
	}
	if string(mapping[0:4]) != string(magic[:]) {
		return Layout{}, fmt.Errorf("header: bad magic %q", mapping[0:4])
	}

	count := binary.LittleEndian.Uint16(mapping[8:10])
	headerSize := alignUp(uint64(headerFixedSize+int(count)*sectionMetaSize), 8)
	if uint64(len(mapping)) < headerSize {
		return Layout{}, fmt.Errorf("header: mapping too small for %d sections", count)
	}

	sections := make([]SectionMeta, count)
	off := headerFixedSize
	for i := range sections {
		sections[i] = SectionMeta{
			Tag:    binary.LittleEndian.Uint32(mapping[off:]),
			Align:  binary.LittleEndian.Uint32(mapping[off+4:]),
			Offset: binary.LittleEndian.Uint64(mapping[off+8:]),
			Size:   binary.LittleEndian.Uint64(mapping[off+16:]),
		}
		off += sectionMetaSize
	}

	gotVersion := binary.LittleEndian.Uint32(mapping[4:8])
	if want := magicVersion(sections); gotVersion != want {
		return Layout{}, fmt.Errorf("header: magic version %#x does not match computed %#x", gotVersion, want)
	}

	return Layout{HeaderSize: headerSize, Sections: sections, Total: headerSize}, nil
}
