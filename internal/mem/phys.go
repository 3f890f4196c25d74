// Package mem simulates the machine's physical memory. A real kernel
// receives RAM as a linear address range handed off by the boot firmware;
// here it is a single byte slice, and "physical addresses" are offsets into
// it. internal/paging and internal/trap read and write through this package
// rather than dereferencing Go pointers directly, so a page table root or a
// trap frame can be addressed uniformly whether it belongs to the running
// process or not.
package mem

import (
	"fmt"

	"github.com/ehrlich-b/go-citron/internal/constants"
)

// Phys is the simulated physical address space.
type Phys struct {
	ram   []byte
	base  uintptr
	alloc *BumpAllocator
}

// NewPhys allocates a simulated RAM region of the given size, page-aligned,
// and wires a bump frame allocator over it.
func NewPhys(size int) *Phys {
	if size%constants.PageSize != 0 {
		size = (size/constants.PageSize + 1) * constants.PageSize
	}
	p := &Phys{
		ram:  make([]byte, size),
		base: 0x1000,
	}
	p.alloc = NewBumpAllocator(p.base, uintptr(size))
	return p
}

// Size returns the total size of simulated RAM in bytes.
func (p *Phys) Size() int { return len(p.ram) }

// Base returns the lowest valid physical address.
func (p *Phys) Base() uintptr { return p.base }

func (p *Phys) offset(addr uintptr) int {
	off := int(addr - p.base)
	if off < 0 || off >= len(p.ram) {
		panic(fmt.Sprintf("mem: physical address %#x out of range", addr))
	}
	return off
}

// Read copies len(dst) bytes starting at the physical address addr.
func (p *Phys) Read(addr uintptr, dst []byte) {
	off := p.offset(addr)
	n := copy(dst, p.ram[off:])
	if n != len(dst) {
		panic(fmt.Sprintf("mem: read at %#x overruns simulated RAM", addr))
	}
}

// Write copies src into simulated RAM starting at the physical address addr.
func (p *Phys) Write(addr uintptr, src []byte) {
	off := p.offset(addr)
	n := copy(p.ram[off:], src)
	if n != len(src) {
		panic(fmt.Sprintf("mem: write at %#x overruns simulated RAM", addr))
	}
}

// Slice returns a direct view into simulated RAM, [addr, addr+length). The
// paging and virtio packages use this to build descriptor tables and page
// tables in place rather than copying through Read/Write.
func (p *Phys) Slice(addr uintptr, length int) []byte {
	off := p.offset(addr)
	end := off + length
	if end > len(p.ram) {
		panic(fmt.Sprintf("mem: slice at %#x/%d overruns simulated RAM", addr, length))
	}
	return p.ram[off:end]
}

// AllocFrame hands out one zero-filled, page-aligned physical frame.
func (p *Phys) AllocFrame() (uintptr, error) {
	addr, err := p.alloc.Alloc(constants.PageSize)
	if err != nil {
		return 0, err
	}
	frame := p.Slice(addr, constants.PageSize)
	for i := range frame {
		frame[i] = 0
	}
	return addr, nil
}

// FreeFrame returns a frame allocated by AllocFrame. The bump allocator
// never reclaims individual frames; FreeFrame is a bookkeeping no-op kept
// so callers don't need to special-case the allocator implementation.
func (p *Phys) FreeFrame(addr uintptr) {
	p.alloc.Free(addr)
}
