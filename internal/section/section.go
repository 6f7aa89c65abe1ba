// Package section implements the bump-allocator base every typed TDAG
// section is built from: a byte span carved out of the memory-mapped
// container file, a write cursor, and a mutex serialising writers against
// each other and against size() snapshots.
package section

import "sync"

// Base is a lock-protected bump allocator over a fixed byte span. It never
// grows the span; once the span is full, Write reports failure.
type Base struct {
	mu     sync.Mutex
	span   []byte
	cursor uint32
}

// NewBase wraps span (a sub-slice of the container's mapping) in a Base
// with its write cursor at the start.
func NewBase(span []byte) *Base {
	return &Base{span: span}
}

// Span returns the section's full backing byte range, for components (like
// StringTable) that need to read arbitrary offsets rather than only the
// most recently written record.
func (b *Base) Span() []byte {
	return b.span
}

// WriteCtx grants exclusive access to a freshly bumped sub-span. The lock
// that serialises this section's writers is held until Release is called;
// callers should defer it immediately.
type WriteCtx struct {
	mu     *sync.Mutex
	Offset uint32
	Buf    []byte
}

// Release unlocks the section, making the written bytes visible to size()
// and to subsequent writers.
func (c WriteCtx) Release() {
	c.mu.Unlock()
}

// Write reserves n bytes at the current cursor and returns a context
// granting exclusive access to them. ok is false if n would overflow the
// section's span; the section is unchanged in that case.
func (b *Base) Write(n uint32) (ctx WriteCtx, ok bool) {
	b.mu.Lock()
	if uint64(b.cursor)+uint64(n) > uint64(len(b.span)) {
		b.mu.Unlock()
		return WriteCtx{}, false
	}

	offset := b.cursor
	b.cursor += n
	return WriteCtx{mu: &b.mu, Offset: offset, Buf: b.span[offset : offset+n]}, true
}

// Size reports the number of bytes written so far (cursor - start).
func (b *Base) Size() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Capacity reports the total size of the section's backing span.
func (b *Base) Capacity() uint32 {
	return uint32(len(b.span))
}

// At returns the span from the given absolute offset to its end,
// without taking the lock — used for reads of already-published data,
// where callers only need the writer's mutex for a consistent Size()
// snapshot, not for every read.
func (b *Base) At(offset uint32) []byte {
	return b.span[offset:]
}
