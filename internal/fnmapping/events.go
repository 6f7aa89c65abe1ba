package fnmapping

import (
	"encoding/binary"

	"github.com/trailofbits/taintdag/internal/section"
)

// Event tags, one leading byte per record.
const (
	EventEnter              byte = 0x00 // + varint(function_id)
	EventExit               byte = 0x01 // + varint(function_id)
	EventAffectsControlFlow byte = 0x02 // + varint(function_id) + varint(label)
)

// Events is the Events section: a variable-length, append-only byte
// stream. When it runs out of room the Log* methods return false; the
// engine facade treats that as fatal.
type Events struct {
	base *section.Base
}

// NewEvents wraps span in an Events log.
func NewEvents(span []byte) *Events {
	return &Events{base: section.NewBase(span)}
}

// Size reports bytes used so far, for FileHeader bookkeeping.
func (e *Events) Size() uint32 { return e.base.Size() }

// LogEnter appends a function-entry event.
func (e *Events) LogEnter(fn FunctionIndex) (ok bool) {
	return e.write(EventEnter, fn)
}

// LogExit appends a function-exit event.
func (e *Events) LogExit(fn FunctionIndex) (ok bool) {
	return e.write(EventExit, fn)
}

// LogAffectsControlFlow appends a taint-affected-control-flow event, naming
// the function it occurred in and the label responsible.
func (e *Events) LogAffectsControlFlow(fn FunctionIndex, label uint32) (ok bool) {
	var buf [1 + 2*binary.MaxVarintLen32]byte
	buf[0] = EventAffectsControlFlow
	n := 1
	n += putVarint(buf[n:], uint64(fn))
	n += putVarint(buf[n:], uint64(label))
	return e.append(buf[:n])
}

func (e *Events) write(tag byte, fn FunctionIndex) bool {
	var buf [1 + binary.MaxVarintLen32]byte
	buf[0] = tag
	n := 1 + putVarint(buf[1:], uint64(fn))
	return e.append(buf[:n])
}

func (e *Events) append(record []byte) bool {
	ctx, ok := e.base.Write(uint32(len(record)))
	if !ok {
		return false
	}
	defer ctx.Release()
	copy(ctx.Buf, record)
	return true
}

// putVarint writes v as a little-endian base-128 varint (continuation bit
// set on every byte but the last) into buf, returning the number of bytes
// written.
func putVarint(buf []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

// Record is one decoded event.
type Record struct {
	Tag      byte
	Function FunctionIndex
	Label    uint32 // only meaningful when Tag == EventAffectsControlFlow
}

// All decodes every event in the stream, in append order.
func (e *Events) All() []Record {
	span := e.base.At(0)[:e.Size()]
	var out []Record
	off := 0
	for off < len(span) {
		tag := span[off]
		off++
		fn, n := getVarint(span[off:])
		off += n
		rec := Record{Tag: tag, Function: FunctionIndex(fn)}
		if tag == EventAffectsControlFlow {
			label, n := getVarint(span[off:])
			off += n
			rec.Label = uint32(label)
		}
		out = append(out, rec)
	}
	return out
}

// getVarint decodes a little-endian base-128 varint from the start of buf,
// returning its value and the number of bytes consumed.
func getVarint(buf []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, b := range buf {
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return v, len(buf)
}
