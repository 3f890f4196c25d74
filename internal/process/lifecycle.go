package process

import (
	"errors"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/paging"
	"github.com/ehrlich-b/go-citron/internal/trap"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

// ErrProcessNotFound is returned by lifecycle operations given a pid that
// names no live process slot.
var ErrProcessNotFound = errors.New("process: not found")

// Loader is the contract internal/loader satisfies: read an ELF from the
// file system, allocate physical frames for each program segment, map them
// into the target page table, and return the entry point and segment list.
// Declared here so Manager can depend on it without
// internal/process importing internal/loader; the wiring code in
// cmd/citron supplies the concrete *loader.Loader.
type Loader interface {
	Load(table *paging.Table, path string) (entry uint64, segments []Segment, err error)
}

// SetLoader wires the ELF loader used by LoadProgram and Execve.
func (m *Manager) SetLoader(l Loader) { m.loader = l }

// newAddressSpace builds a fresh page table with the trampoline mapped at
// the canonical VA; every address space must carry that mapping so a
// page-table switch inside the trampoline cannot fault.
func (m *Manager) newAddressSpace() *paging.Table {
	table := paging.NewRootTable(m.phys)
	m.trampoline.Install(m.phys, table)
	return table
}

// CreateProcess allocates a user process slot with a fresh address space,
// user stack, and trap frame, records the default kernel stack size (no
// kernel-stack memory is allocated), loads path as its initial image, and
// leaves it Suspend (the caller is expected to Ready it).
func (m *Manager) CreateProcess(name string, priority int, path string) (*Process, error) {
	p := m.allocSlot(name, priority)
	p.PageTable = m.newAddressSpace()

	frame, err := m.newTrapFrame(p.PageTable, p.Pid)
	if err != nil {
		return nil, err
	}
	p.Frame = frame

	p.KernelStackSize = constants.DefaultKernelStackSize
	p.UserStackBase = constants.UserStackTop - constants.DefaultUserStackSize
	p.UserStackSize = constants.DefaultUserStackSize
	stackAddr, err := m.allocUserStack(p.PageTable, p.UserStackBase, p.UserStackSize)
	if err != nil {
		return nil, err
	}
	p.Segments = append(p.Segments, Segment{VAddr: p.UserStackBase, PAddr: stackAddr, Size: p.UserStackSize, Perm: uapi.PTERead | uapi.PTEWrite | uapi.PTEUser})

	if err := m.loadInto(p, path); err != nil {
		return nil, err
	}

	return p, nil
}

// CreateKernelProcess allocates a kernel-mode process that runs entry
// directly instead of loading an ELF.
func (m *Manager) CreateKernelProcess(name string, priority int, entry func(*Process)) *Process {
	p := m.allocSlot(name, priority)
	p.kernelEntry = entry
	return p
}

// Run executes a kernel process's entry function directly. There is no
// hart to trap into for kernel processes; the scheduler simply calls this
// when such a process becomes Running, in place of a real return-to-user
// sequence.
func (p *Process) Run() {
	if p.kernelEntry != nil {
		p.kernelEntry(p)
	}
}

func (m *Manager) newTrapFrame(table *paging.Table, pid int) (*trap.Frame, error) {
	f, err := trap.NewFrame(m.phys)
	if err != nil {
		return nil, err
	}
	f.MapInto(table)
	tf := f.Load()
	tf.Pid = uint64(pid)
	f.Store(tf)
	return f, nil
}

func (m *Manager) allocUserStack(table *paging.Table, vaddr, size uintptr) (uintptr, error) {
	paddr, err := m.phys.AllocFrame()
	if err != nil {
		return 0, err
	}
	table.MapRange(m.phys, vaddr, paddr, size, uapi.PTERead|uapi.PTEWrite|uapi.PTEUser)
	return paddr, nil
}

func (m *Manager) loadInto(p *Process, path string) error {
	if m.loader == nil || path == "" {
		return nil
	}
	entry, segments, err := m.loader.Load(p.PageTable, path)
	if err != nil {
		return err
	}
	p.Segments = append(p.Segments, segments...)
	frame := p.Frame.Load()
	frame.PC = entry
	frame.SP = uint64(constants.UserStackTop)
	p.Frame.Store(frame)
	return nil
}

// LoadProgram replaces pid's image with the ELF at path without resetting
// any other process state; used by callers that want to stage a program
// before first Ready (Execve tears down the existing image first, since it
// replaces a running process).
func (m *Manager) LoadProgram(pid int, path string) error {
	p := m.Get(pid)
	if p == nil {
		return nil
	}
	return m.loadInto(p, path)
}

// Fork deep-copies the trap frame, user stack, and each program segment
// into a newly constructed address space that also maps trampoline and
// trap frame; only the trampoline page is shared between parent and child.
// The kernel stack is carried over as a size only: no kernel-stack memory
// is allocated or copied. The child's trap frame keeps its own pid as the
// back-pointer, and its a0 is set to 0 so its syscall-return
// path delivers 0; the parent's a0 is left for the caller (internal/
// syscalls) to set to the child's pid. The child enters Suspend; the
// caller is expected to Ready it.
func (m *Manager) Fork(pid int) (*Process, error) {
	parent := m.Get(pid)
	if parent == nil {
		return nil, ErrProcessNotFound
	}

	child := m.allocSlot(parent.Name+"-child", parent.Priority)
	child.Parent = parent.Pid
	child.PageTable = m.newAddressSpace()

	frame, err := m.newTrapFrame(child.PageTable, child.Pid)
	if err != nil {
		return nil, err
	}
	child.Frame = frame

	parentFrame := parent.Frame.Load()
	child.Frame.Store(parentFrame)
	childTF := child.Frame.Load()
	childTF.A0 = 0
	childTF.Pid = uint64(child.Pid)
	child.Frame.Store(childTF)

	child.KernelStackSize = parent.KernelStackSize
	child.UserStackBase = parent.UserStackBase
	child.UserStackSize = parent.UserStackSize

	for _, seg := range parent.Segments {
		newPAddr, err := m.copySegment(seg)
		if err != nil {
			return nil, err
		}
		child.PageTable.MapRange(m.phys, seg.VAddr, newPAddr, seg.Size, seg.Perm)
		child.Segments = append(child.Segments, Segment{VAddr: seg.VAddr, PAddr: newPAddr, Size: seg.Size, Perm: seg.Perm})
	}

	parent.Children = append(parent.Children, child.Pid)
	child.State = StateSuspend

	return child, nil
}

// copySegment allocates fresh physical frames and copies seg's bytes into
// them, byte for byte.
func (m *Manager) copySegment(seg Segment) (uintptr, error) {
	pages := (seg.Size + constants.PageSize - 1) / constants.PageSize
	first := uintptr(0)
	for i := uintptr(0); i < pages; i++ {
		frame, err := m.phys.AllocFrame()
		if err != nil {
			return 0, err
		}
		if i == 0 {
			first = frame
		}
		src := m.phys.Slice(seg.PAddr+i*constants.PageSize, constants.PageSize)
		dst := m.phys.Slice(frame, constants.PageSize)
		copy(dst, src)
	}
	return first, nil
}

// Execve tears down the caller's address-space contents except kernel
// mappings (here: the trampoline, which newAddressSpace always
// reinstalls), re-runs the loader to build a fresh segment list and entry
// point, resets the user stack, and sets the saved pc to the new entry.
// The caller's pid is preserved.
func (m *Manager) Execve(pid int, path string) error {
	p := m.Get(pid)
	if p == nil {
		return ErrProcessNotFound
	}

	for _, seg := range p.Segments {
		m.freeSegment(seg)
	}
	p.Segments = nil
	p.PageTable.Unmap(m.phys)
	p.PageTable = m.newAddressSpace()

	frame, err := m.newTrapFrame(p.PageTable, p.Pid)
	if err != nil {
		return err
	}
	p.Frame = frame

	stackAddr, err := m.allocUserStack(p.PageTable, p.UserStackBase, p.UserStackSize)
	if err != nil {
		return err
	}
	p.Segments = append(p.Segments, Segment{VAddr: p.UserStackBase, PAddr: stackAddr, Size: p.UserStackSize, Perm: uapi.PTERead | uapi.PTEWrite | uapi.PTEUser})

	return m.loadInto(p, path)
}

func (m *Manager) freeSegment(seg Segment) {
	pages := (seg.Size + constants.PageSize - 1) / constants.PageSize
	for i := uintptr(0); i < pages; i++ {
		m.phys.FreeFrame(seg.PAddr + i*constants.PageSize)
	}
}

// Kill releases the user stack and each segment, tears
// down the page table (recursive free of owned branches), releases the
// trap frame, transitions the process to Free, and signals the exit event
// wait_exit blocks on. A killed pid's slot is reusable the instant it
// goes Free, exactly as the process table treats every other Free slot;
// a parent that delays wait_exit past its sibling's next
// create_process/fork risks racing that reuse (there is no separate
// zombie/reap-reservation state).
func (m *Manager) Kill(pid int) {
	p := m.Get(pid)
	if p == nil {
		return
	}

	for _, seg := range p.Segments {
		m.freeSegment(seg)
	}
	p.Segments = nil

	if p.PageTable != nil {
		p.PageTable.Unmap(m.phys)
	}
	if p.Frame != nil {
		m.phys.FreeFrame(p.Frame.PhysAddr())
	}

	p.State = StateFree
	// wait_exit has no pid argument (it waits for any child), so Kill
	// broadcasts the wildcard exit event (pid -1) rather than a pid-specific
	// one; EventExit(pid) stays available as a constructor for a future
	// specific-pid wait without the two colliding as map keys.
	m.EventSignal(EventExit(-1))
}

// WaitExit reaps one exited child. It is non-blocking at this layer: if a
// child has already reached Free, it is removed from the caller's
// children list and returned immediately; otherwise the caller is parked
// on EventExit and wouldBlock is reported so the syscall dispatcher can
// leave the trap frame's pc at the ecall, retrying the same syscall the
// next time this pid is scheduled (there is no stackful coroutine to
// resume into the middle of a blocked wait).
func (m *Manager) WaitExit(pid int) (childPid int, found bool, wouldBlock bool) {
	p := m.Get(pid)
	if p == nil {
		return 0, false, false
	}

	for i, cpid := range p.Children {
		child := m.table[cpid]
		if child != nil && child.State == StateFree {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			return cpid, true, false
		}
	}
	if len(p.Children) == 0 {
		return 0, false, false
	}

	m.EventWait(pid, EventExit(-1))
	return 0, false, true
}
