// Package buffer provides 16-byte-aligned byte buffers used to hold symbol
// payloads, with two growth strategies: leaving newly grown bytes
// uninitialized (fast scratch space) or zero-filling them (required for
// accumulators that get XORed into).
package buffer

import "unsafe"

const alignment = 16

// Buffer is a byte slice over an over-allocated, 16-byte-aligned backing
// array. The alignment is a hint for vectorized field operations; on
// platforms where that doesn't matter it costs a few wasted bytes per
// buffer.
type Buffer struct {
	backing []byte
	off     int // offset of the aligned region within backing
	size    int // logical length
}

// New allocates a buffer with the given initial size and its backing array
// aligned to a 16-byte boundary.
func New(size int) *Buffer {
	b := &Buffer{}
	b.alloc(size)
	return b
}

// alloc over-allocates by one alignment quantum and starts the logical
// region at the first 16-byte-aligned address within the backing array.
func (b *Buffer) alloc(size int) {
	b.backing = make([]byte, size+alignment)
	b.off = alignedOffset(b.backing)
	b.size = size
}

// alignedOffset returns the offset of the first 16-byte-aligned address in
// backing, which must be non-empty.
func alignedOffset(backing []byte) int {
	return int(-uintptr(unsafe.Pointer(&backing[0])) & (alignment - 1))
}

// Bytes returns the logical contents of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.backing[b.off : b.off+b.size]
}

// Len returns the logical length.
func (b *Buffer) Len() int { return b.size }

// Zero fills the logical region with zero bytes.
func (b *Buffer) Zero() {
	buf := b.Bytes()
	for i := range buf {
		buf[i] = 0
	}
}

// UninitBuffer grows without zero-filling new bytes: fast, but the tail
// beyond the previous logical length is indeterminate.
type UninitBuffer struct{ Buffer }

// NewUninit allocates an uninitialized-on-grow buffer.
func NewUninit(size int) *UninitBuffer {
	u := &UninitBuffer{}
	u.alloc(size)
	return u
}

// Resize changes the logical length. Growing does not touch the newly
// exposed tail; shrinking never clears the retained prefix.
func (u *UninitBuffer) Resize(n int) {
	u.growBacking(n)
	u.size = n
}

// ZeroBuffer grows by zero-filling the newly exposed tail: required for
// accumulators (e.g. a repair's running XOR) that must start from zero.
type ZeroBuffer struct{ Buffer }

// NewZero allocates a zero-on-grow buffer, itself zeroed.
func NewZero(size int) *ZeroBuffer {
	z := &ZeroBuffer{}
	z.alloc(size)
	z.Zero()
	return z
}

// Resize changes the logical length, zero-filling any newly exposed tail
// bytes when growing. Shrinking never clears the retained prefix.
func (z *ZeroBuffer) Resize(n int) {
	old := z.size
	z.growBacking(n)
	z.size = n
	if n > old {
		tail := z.Bytes()[old:n]
		for i := range tail {
			tail[i] = 0
		}
	}
}

// growBacking reallocates the backing array if n exceeds current capacity,
// copying the retained prefix and preserving alignment.
func (b *Buffer) growBacking(n int) {
	if n <= cap(b.backing)-b.off {
		return
	}
	newBacking := make([]byte, n+alignment)
	off := alignedOffset(newBacking)
	copy(newBacking[off:], b.backing[b.off:b.off+b.size])
	b.backing = newBacking
	b.off = off
}
