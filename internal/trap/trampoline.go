// Package trap models the trampoline/trap-frame round trip across the
// user/kernel boundary. There is no real hart to trap on, so uservec/userret are
// not assembly stubs; they are the Go methods below, called by
// internal/process and internal/syscalls at the points a real kernel would
// reach them via hardware trap entry and the sret instruction. The
// invariant they preserve is the one that matters: the trampoline page is
// mapped at the same virtual address in every address space, the trap
// frame lives at a second fixed address private to each process, and a
// syscall's return value and resumption pc flow through that frame exactly
// as the real round trip would leave them.
package trap

import (
	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/paging"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

// EcallSize is the width of the ecall instruction; user_trap_return
// advances the saved pc past it before resuming.
const EcallSize = 4

// TrampolineVA and TrapFrameVA are the canonical virtual addresses,
// re-exported here for callers that only import internal/trap.
const (
	TrampolineVA = constants.TrampolineVA
	TrapFrameVA  = constants.TrapFrameVA
)

// Trampoline is the single physical page shared read-execute by every
// address space. Its contents are irrelevant in simulation (there is no
// code to execute); its physical identity and the fact that it is mapped
// at TrampolineVA everywhere is what matters.
type Trampoline struct {
	page uintptr
}

// NewTrampoline allocates the trampoline's backing physical page.
func NewTrampoline(phys *mem.Phys) (*Trampoline, error) {
	page, err := phys.AllocFrame()
	if err != nil {
		return nil, err
	}
	return &Trampoline{page: page}, nil
}

// Install maps the trampoline page at TrampolineVA in table, read+execute,
// no U bit: it is kernel code, entered by trap dispatch rather than called
// from user code directly.
func (t *Trampoline) Install(phys *mem.Phys, table *paging.Table) {
	table.Map(phys, TrampolineVA, t.page, uapi.PTERead|uapi.PTEExec, 0)
}

// Frame is one process's trap frame, backed by a dedicated physical page so
// it can be mapped at TrapFrameVA the same way the real trampoline would
// dereference it.
type Frame struct {
	phys *mem.Phys
	addr uintptr
}

// NewFrame allocates a trap frame's backing page.
func NewFrame(phys *mem.Phys) (*Frame, error) {
	addr, err := phys.AllocFrame()
	if err != nil {
		return nil, err
	}
	return &Frame{phys: phys, addr: addr}, nil
}

// PhysAddr returns the physical address backing this frame.
func (f *Frame) PhysAddr() uintptr { return f.addr }

// MapInto maps this frame at TrapFrameVA in table, read-write, no U bit:
// only kernel code (uservec/userret) touches it directly.
func (f *Frame) MapInto(table *paging.Table) {
	table.Map(f.phys, TrapFrameVA, f.addr, uapi.PTERead|uapi.PTEWrite, 0)
}

// Load reads the current register state out of the frame's backing page.
func (f *Frame) Load() *uapi.TrapFrame {
	buf := f.phys.Slice(f.addr, uapi.TrapFrameSize)
	tf := &uapi.TrapFrame{}
	tf.Unmarshal(buf)
	return tf
}

// Store writes tf back to the frame's backing page.
func (f *Frame) Store(tf *uapi.TrapFrame) {
	buf := f.phys.Slice(f.addr, uapi.TrapFrameSize)
	copy(buf, tf.Marshal())
}

// EnterTrap is uservec's job performed as a plain call: the caller (the
// process manager's ecall handler) has already populated the trap frame's
// register fields with the user's register state before calling this, so
// EnterTrap only needs to record the user pc the trap occurred at.
func EnterTrap(tf *uapi.TrapFrame, userPC uint64) {
	tf.PC = userPC
}

// Return is user_trap_return + userret collapsed into one call: it writes
// the syscall's return value into a0, advances the resumption pc past the
// ecall that caused the trap, and writes the kernel-reentry fields
// (satp/sp/trap/hartid) the next trap will reload. There is no real SPP/
// SPIE/sfence.vma to restore in a simulation with no CPU state outside this
// struct.
func Return(tf *uapi.TrapFrame, retVal uint64, kernelSATP, kernelSP, kernelTrap, hartID uint64) {
	tf.A0 = retVal
	tf.PC += EcallSize
	tf.KernelSATP = kernelSATP
	tf.KernelSP = kernelSP
	tf.KernelTrap = kernelTrap
	tf.KernelHartID = hartID
}
