package section

import (
	"fmt"
	"unsafe"
)

// Fixed is a Section specialised for a fixed-size element type T: every
// slot is exactly sizeof(T) bytes, addressed by a zero-based index rather
// than a byte offset. It is the Go analogue of FixedSizeAlloc<T>.
type Fixed[T any] struct {
	base     *Base
	elemSize uint32
}

// NewFixed wraps span in a Fixed[T], validating that the span's size is a
// whole multiple of sizeof(T). The span's base alignment is guaranteed by
// the container's section layout (internal/header), which rounds every
// section's starting offset up to alignof(T).
func NewFixed[T any](span []byte) (*Fixed[T], error) {
	var zero T
	elemSize := uint32(unsafe.Sizeof(zero))
	if elemSize == 0 {
		return nil, fmt.Errorf("section: zero-sized element type %T", zero)
	}
	if uint64(len(span))%uint64(elemSize) != 0 {
		return nil, fmt.Errorf(
			"section: span of %d bytes is not a multiple of element size %d", len(span), elemSize,
		)
	}
	return &Fixed[T]{base: NewBase(span), elemSize: elemSize}, nil
}

// Count reports how many elements have been constructed so far.
func (f *Fixed[T]) Count() uint32 {
	return f.base.Size() / f.elemSize
}

// Capacity reports the maximum number of elements the section can hold.
func (f *Fixed[T]) Capacity() uint32 {
	return f.base.Capacity() / f.elemSize
}

// Size reports the number of bytes used so far, for FileHeader bookkeeping.
func (f *Fixed[T]) Size() uint32 {
	return f.base.Size()
}

// Construct places v in the next free slot and returns its index. ok is
// false if the section is at capacity.
func (f *Fixed[T]) Construct(v T) (index uint32, ok bool) {
	ctx, ok := f.base.Write(f.elemSize)
	if !ok {
		return 0, false
	}
	defer ctx.Release()

	*(*T)(unsafe.Pointer(&ctx.Buf[0])) = v
	return ctx.Offset / f.elemSize, true
}

// ConstructRange places n elements, generated by gen(i) for i in
// [0, n), in n consecutive slots. first is the index of the first slot;
// ok is false (and nothing is written) if the section cannot hold all n
// elements.
func (f *Fixed[T]) ConstructRange(n uint32, gen func(i uint32) T) (first uint32, ok bool) {
	if n == 0 {
		return 0, false
	}

	ctx, ok := f.base.Write(f.elemSize * n)
	if !ok {
		return 0, false
	}
	defer ctx.Release()

	for i := uint32(0); i < n; i++ {
		*(*T)(unsafe.Pointer(&ctx.Buf[i*f.elemSize])) = gen(i)
	}
	return ctx.Offset / f.elemSize, true
}

// Index returns the element stored at idx. ok is false if idx is beyond
// the number of elements constructed so far.
func (f *Fixed[T]) Index(idx uint32) (v T, ok bool) {
	if idx >= f.Count() {
		return v, false
	}
	buf := f.base.At(idx * f.elemSize)
	return *(*T)(unsafe.Pointer(&buf[0])), true
}

// Set overwrites the element already constructed at idx with an ordinary
// (non-atomic) store. It exists for the one case that needs to mutate a
// slot after construction: setting the affects-control-flow bit on an
// already-stored taint word; a plain store is safe here because each
// label's CF bit transitions at most once.
func (f *Fixed[T]) Set(idx uint32, v T) bool {
	if idx >= f.Count() {
		return false
	}
	buf := f.base.At(idx * f.elemSize)
	*(*T)(unsafe.Pointer(&buf[0])) = v
	return true
}

// All returns every constructed element, in construction order. It takes a
// consistent snapshot of Count() before reading.
func (f *Fixed[T]) All() []T {
	count := f.Count()
	out := make([]T, count)
	for i := uint32(0); i < count; i++ {
		out[i], _ = f.Index(i)
	}
	return out
}

// ReverseFind scans constructed elements from the most recent to the
// oldest, returning the index of the first one for which match returns
// true. ok is false if none match.
func (f *Fixed[T]) ReverseFind(match func(T) bool) (idx uint32, ok bool) {
	count := f.Count()
	for i := count; i > 0; i-- {
		v, _ := f.Index(i - 1)
		if match(v) {
			return i - 1, true
		}
	}
	return 0, false
}
