package mem

import "errors"

// ErrOutOfMemory is returned when the bump allocator's region is exhausted.
var ErrOutOfMemory = errors.New("mem: out of memory")

// BumpAllocator is a single-threaded, monotonically-advancing frame
// allocator: it never reuses a freed frame. A bump allocator is the
// simplest thing that satisfies AllocFrame/FreeFrame without pretending
// to model a general-purpose locked heap.
type BumpAllocator struct {
	base  uintptr
	size  uintptr
	next  uintptr
	freed int
}

// NewBumpAllocator creates an allocator over [base, base+size).
func NewBumpAllocator(base, size uintptr) *BumpAllocator {
	return &BumpAllocator{base: base, size: size, next: base}
}

// Alloc returns the next free region of exactly the requested size; it
// applies no rounding or alignment (callers pass page-sized requests
// only).
func (b *BumpAllocator) Alloc(size uintptr) (uintptr, error) {
	if b.next+size > b.base+b.size {
		return 0, ErrOutOfMemory
	}
	addr := b.next
	b.next += size
	return addr, nil
}

// Free records that addr was released. The bump allocator does not reclaim
// space; this only tracks a count so tests can assert every allocation was
// eventually freed.
func (b *BumpAllocator) Free(uintptr) {
	b.freed++
}

// Allocated returns the number of bytes handed out so far.
func (b *BumpAllocator) Allocated() uintptr {
	return b.next - b.base
}
