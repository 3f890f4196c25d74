// Package paging implements Sv39 three-level radix page tables over the
// simulated physical memory in internal/mem. Every table is identified by
// its physical base address (its "root"); internal/mem.Phys.Slice gives
// direct read/write access to the 512 page-table entries a table holds.
package paging

import (
	"encoding/binary"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

// Perm is a permission bit set (any of uapi.PTERead/Write/Exec/User/Global).
type Perm = uapi.PTE

const entrySize = 8 // bytes per PTE

// Table gives PTE-indexed access to one page-table frame in simulated RAM.
type Table struct {
	phys *mem.Phys
	root uintptr
}

// At returns a Table view over the frame at root.
func At(phys *mem.Phys, root uintptr) *Table {
	return &Table{phys: phys, root: root}
}

func (t *Table) entry(i int) uapi.PTE {
	buf := t.phys.Slice(t.root+uintptr(i*entrySize), entrySize)
	return uapi.PTE(binary.LittleEndian.Uint64(buf))
}

func (t *Table) setEntry(i int, e uapi.PTE) {
	buf := t.phys.Slice(t.root+uintptr(i*entrySize), entrySize)
	binary.LittleEndian.PutUint64(buf, uint64(e))
}

func vpn(vaddr uintptr) [constants.Levels]int {
	return [constants.Levels]int{
		int((vaddr >> 12) & 0x1ff),
		int((vaddr >> 21) & 0x1ff),
		int((vaddr >> 30) & 0x1ff),
	}
}

// Map installs a translation for vaddr -> paddr with permission perm,
// materializing zero-filled branch tables as needed, stopping at level
// (0 = 4 KiB leaf). perm's R|W|X must be non-zero; Map panics otherwise,
// since a zero-permission leaf can only ever be a branch and callers that
// want a branch should let Map create one implicitly.
func (t *Table) Map(phys *mem.Phys, vaddr, paddr uintptr, perm Perm, level int) {
	if perm&(uapi.PTERead|uapi.PTEWrite|uapi.PTEExec) == 0 {
		panic("paging: Map requires at least one of R/W/X")
	}
	v := vpn(vaddr)
	cur := t
	idx := v[constants.Levels-1]
	for i := constants.Levels - 2; i >= level; i-- {
		e := cur.entry(idx)
		if !e.IsValid() {
			frame, err := phys.AllocFrame()
			if err != nil {
				panic("paging: out of physical memory materializing branch table")
			}
			e = uapi.MakeBranch(frame)
			cur.setEntry(idx, e)
		}
		cur = At(phys, e.TableAddr())
		idx = v[i]
	}
	cur.setEntry(idx, uapi.MakeLeaf(paddr, perm))
}

// Unmap recursively frees every branch-table frame reachable from t,
// leaving leaf frames untouched: those belong to the owning process
// record (program segments, user stack) and are freed separately by it.
func (t *Table) Unmap(phys *mem.Phys) {
	unmapLevel(phys, t, constants.Levels-1)
}

func unmapLevel(phys *mem.Phys, table *Table, level int) {
	for i := 0; i < constants.PTEsPerTable; i++ {
		e := table.entry(i)
		if !e.IsValid() || !e.IsBranch() {
			continue
		}
		child := At(phys, e.TableAddr())
		if level > 0 {
			unmapLevel(phys, child, level-1)
		}
		phys.FreeFrame(e.TableAddr())
	}
}

// VirtToPhys walks the table until it reaches a leaf, masking off
// level-appropriate offset bits and OR-combining with the in-page offset of
// vaddr. The masking generalizes to super-page leaves found at level 1 or
// 2, not just level 0. Returns ok=false if
// the walk hits an invalid entry before reaching a leaf.
func (t *Table) VirtToPhys(phys *mem.Phys, vaddr uintptr) (paddr uintptr, ok bool) {
	v := vpn(vaddr)
	cur := t
	idx := v[constants.Levels-1]
	for i := constants.Levels - 1; i >= 0; i-- {
		e := cur.entry(idx)
		if !e.IsValid() {
			return 0, false
		}
		if e.IsLeaf() {
			offMask := uintptr(1)<<(12+uint(i)*9) - 1
			pageAddr := e.PPN() &^ offMask
			return pageAddr | (vaddr & offMask), true
		}
		cur = At(phys, e.TableAddr())
		if i > 0 {
			idx = v[i-1]
		}
	}
	return 0, false
}

func alignUp(val, align uintptr) uintptr {
	mask := align - 1
	return (val + mask) &^ mask
}

// MapRange maps [vaddr, vaddr+size) to physical pages starting at paddr,
// page by page, at leaf level 0.
func (t *Table) MapRange(phys *mem.Phys, vaddr, paddr uintptr, size uintptr, perm Perm) {
	pa := paddr &^ (constants.PageSize - 1)
	va := vaddr &^ (constants.PageSize - 1)
	pages := (alignUp(pa+size, constants.PageSize) - pa) / constants.PageSize
	for i := uintptr(0); i < pages; i++ {
		t.Map(phys, va, pa, perm, 0)
		pa += constants.PageSize
		va += constants.PageSize
	}
}

// IDMapRange identity-maps [start, end) at leaf level 0, used for the
// kernel's own sections and the MMIO windows it must access directly.
func (t *Table) IDMapRange(phys *mem.Phys, start, end uintptr, perm Perm) {
	addr := start &^ (constants.PageSize - 1)
	pages := (alignUp(end, constants.PageSize) - addr) / constants.PageSize
	for i := uintptr(0); i < pages; i++ {
		t.Map(phys, addr, addr, perm, 0)
		addr += constants.PageSize
	}
}

// Root returns the physical base address of this table.
func (t *Table) Root() uintptr { return t.root }

// NewRootTable allocates a fresh zero-filled frame to serve as a page-table
// root.
func NewRootTable(phys *mem.Phys) *Table {
	frame, err := phys.AllocFrame()
	if err != nil {
		panic("paging: out of physical memory allocating root table")
	}
	return At(phys, frame)
}
