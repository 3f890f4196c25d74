// Package uapi holds the wire-level layouts shared across the kernel's
// simulated hardware boundary: page-table entry bit encoding, the trap
// frame byte layout, and the virtio MMIO register map. Everything here is
// a plain numeric encoding with explicit Marshal/Unmarshal helpers rather
// than unsafe struct casts.
package uapi

// PTE is a single Sv39 page-table entry, a 64-bit machine word.
type PTE uint64

// Entry bit positions and field masks (Sv39, 64-bit entries).
const (
	PTEValid    PTE = 1 << 0
	PTERead     PTE = 1 << 1
	PTEWrite    PTE = 1 << 2
	PTEExec     PTE = 1 << 3
	PTEUser     PTE = 1 << 4
	PTEGlobal   PTE = 1 << 5
	PTEAccessed PTE = 1 << 6
	PTEDirty    PTE = 1 << 7

	pteRSWShift = 8
	pteRSWMask  = 0x3

	ptePPN0Shift = 10
	ptePPN0Mask  = 0x1ff
	ptePPN1Shift = 19
	ptePPN1Mask  = 0x1ff
	ptePPN2Shift = 28
	ptePPN2Mask  = 0x3ffffff
)

// IsValid reports whether the V bit is set.
func (e PTE) IsValid() bool { return e&PTEValid != 0 }

// IsLeaf reports whether any of R/W/X is set; a branch entry has all three
// clear.
func (e PTE) IsLeaf() bool { return e&(PTERead|PTEWrite|PTEExec) != 0 }

// IsBranch is the complement of IsLeaf.
func (e PTE) IsBranch() bool { return !e.IsLeaf() }

// PPN extracts the full physical page number (bits 10-53) as a frame
// address, i.e. already shifted left by 12 to be a physical byte address.
func (e PTE) PPN() uintptr {
	return uintptr(e>>10) << 12
}

// TableAddr returns the physical address of the table this branch entry
// points at. Only valid when IsBranch() is true.
func (e PTE) TableAddr() uintptr {
	return e.PPN()
}

// MakeBranch builds a valid branch PTE pointing at the table physical
// address tableAddr (must be page-aligned).
func MakeBranch(tableAddr uintptr) PTE {
	return PTE((tableAddr>>12)<<10) | PTEValid
}

// MakeLeaf builds a valid leaf PTE for physical page paddr with the given
// permission bits (any combination of PTERead/PTEWrite/PTEExec/PTEUser/
// PTEGlobal/PTEAccessed/PTEDirty). R|W|X must be non-zero; the caller
// (internal/paging.Map) asserts this before calling MakeLeaf.
func MakeLeaf(paddr uintptr, perm PTE) PTE {
	return PTE((paddr>>12)<<10) | perm | PTEValid
}
