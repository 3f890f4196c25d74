// Package boot simulates the machine-mode startup sequence: a per-hart
// stack slot, a PMP grant covering the full address space,
// interrupt/exception delegation to S-mode, and the CLINT timer vector,
// before handing control to the kernel proper. The sequence is reworked
// as data a Go process can inspect and act on instead of inline assembly,
// since there is no real hart underneath this simulation to execute mret
// on.
package boot

import (
	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/paging"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

// PMPGrant records the physical memory protection window the machine-mode
// entry point installs before dropping to S-mode: full address-space
// access (no PMP-denied region is ever exercised).
type PMPGrant struct {
	Base uintptr
	Size uintptr
}

// MachineState is the boot-time record of a single hart's machine-mode
// setup. hart 0 is the only one the scheduler ever drives; every other
// hart's record exists purely to mirror the way other harts spin at boot
// on the real machine.
type MachineState struct {
	HartID int

	StackBase uintptr
	StackSize uintptr

	PMP PMPGrant

	InterruptsDelegated bool
	TimerInterval       uint64
	TimerEnabled        bool

	// Entry is the virtual address mepc is set to before mret; kmain in
	// practice.
	Entry uintptr
}

// HartStackSlot computes the per-hart machine-mode stack slot: slot size
// constants.DefaultHartStackSize, indexed by hart id plus one (hart 0's
// slot starts at stackTop - 1*slotSize, not at stackTop itself).
func HartStackSlot(stackTop uintptr, hartID int) (base uintptr, size uintptr) {
	size = constants.DefaultHartStackSize
	offset := uintptr(hartID+1) * size
	return stackTop - offset, size
}

// NewMachineState builds the machine-mode boot record for one hart. Only
// hart 0 proceeds to Init; the rest remain zero-valued, spinning records.
func NewMachineState(hartID int, stackTop uintptr) *MachineState {
	base, size := HartStackSlot(stackTop, hartID)
	return &MachineState{
		HartID:    hartID,
		StackBase: base,
		StackSize: size,
	}
}

// Init performs hart 0's machine-mode bring-up: grant PMP access to the
// full address space, delegate all interrupts and exceptions to S-mode,
// arm the CLINT timer to fire every interval ticks, and record entry as
// the address mepc is set to before mret.
func (m *MachineState) Init(entry uintptr, interval uint64) {
	m.PMP = PMPGrant{Base: 0, Size: ^uintptr(0)}
	m.InterruptsDelegated = true
	m.TimerInterval = interval
	m.TimerEnabled = true
	m.Entry = entry
}

// IdentityMapDevices maps the standard virt-machine MMIO windows (CLINT,
// PLIC, UART0, the four virtio-mmio slots, FW_CFG) into root at R+W, the
// way the kernel reaches every device register directly rather than
// through a driver-owned mapping.
func IdentityMapDevices(root *paging.Table, phys *mem.Phys) {
	perm := uapi.PTERead | uapi.PTEWrite
	root.IDMapRange(phys, constants.CLINTBase, constants.CLINTBase+constants.PageSize, perm)
	root.IDMapRange(phys, constants.PLICBase, constants.PLICBase+constants.PageSize, perm)
	root.IDMapRange(phys, constants.UART0Base, constants.UART0Base+constants.PageSize, perm)
	root.IDMapRange(phys, constants.FWCfgBase, constants.FWCfgBase+constants.PageSize, perm)

	virtioEnd := uintptr(constants.VirtioBase + constants.VirtioWindowSize*constants.VirtioWindowCount)
	root.IDMapRange(phys, constants.VirtioBase, virtioEnd, perm)
}

// DebugExitCode encodes the value the QEMU debug-exit device expects:
// (code<<16)|0x5555 for a passing run,
// (code<<16)|0x3333 for a failing one.
func DebugExitCode(code uint16, pass bool) uint32 {
	magic := uint32(constants.QEMUDebugExitFail)
	if pass {
		magic = constants.QEMUDebugExitPass
	}
	return uint32(code)<<16 | magic
}

// Boot drives the full sequence for a single-hart simulation: size the
// hart-0 stack slot, run machine-mode Init targeting entry, identity-map
// the device windows into root, and log the outcome before the kernel
// proper takes over.
func Boot(root *paging.Table, phys *mem.Phys, stackTop, entry uintptr, log *logging.Logger) *MachineState {
	state := NewMachineState(0, stackTop)
	state.Init(entry, constants.DefaultTimerInterval)
	IdentityMapDevices(root, phys)

	log.Named("boot").Info("machine-mode bring-up complete",
		"hart", state.HartID,
		"stack_base", state.StackBase,
		"stack_size", state.StackSize,
		"timer_interval", state.TimerInterval,
		"entry", entry,
	)
	return state
}
