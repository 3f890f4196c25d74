// Package process implements the kernel's process table, priority
// scheduler, sleep-delta queue, semaphores, event waits, and the
// fork/exec/kill lifecycle.
package process

import (
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/paging"
	"github.com/ehrlich-b/go-citron/internal/trap"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

// State is a process's scheduling state.
type State int

const (
	StateFree State = iota
	StateSuspend
	StateReady
	StateRunning
	StateSleep
	StateSemaWait
	StateIOWait
	StateEventWait
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "Free"
	case StateSuspend:
		return "Suspend"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateSleep:
		return "Sleep"
	case StateSemaWait:
		return "SemaWait"
	case StateIOWait:
		return "IOWait"
	case StateEventWait:
		return "EventWait"
	default:
		return "Unknown"
	}
}

// Segment is one loaded program segment: a physical buffer mapped at a
// virtual range with fixed permissions. internal/loader produces these;
// Fork deep-copies them; Kill releases them.
type Segment struct {
	VAddr uintptr
	PAddr uintptr
	Size  uintptr
	Perm  uapi.PTE
}

// Context holds the callee-saved registers a context switch preserves.
// Since there is no real
// hart to switch, the scheduler does not resume execution through this
// struct the way assembly would; it is carried so Fork can copy it and so
// the shape of a real context switch is represented faithfully.
type Context struct {
	RA, SP             uint64
	S0, S1, S2, S3, S4 uint64
	S5, S6, S7, S8, S9 uint64
	S10, S11           uint64
	A0, SStatus        uint64
}

// Process is one process-table entry.
type Process struct {
	Pid      int
	Name     string
	Priority int
	State    State

	KernelStackBase uintptr
	KernelStackSize uintptr
	UserStackBase   uintptr
	UserStackSize   uintptr

	Children []int
	Parent   int

	PageTable *paging.Table
	Frame     *trap.Frame
	Context   Context
	Segments  []Segment

	// Kernel processes run a Go function directly instead of user code
	// loaded from an ELF; nil for user processes.
	kernelEntry func(*Process)
}

// Manager owns the process table and every scheduling data structure: a
// process-wide singleton with a single owner, explicit init and
// retrieval.
type Manager struct {
	phys       *mem.Phys
	trampoline *trap.Trampoline
	log        *logging.Logger
	observer   Observer
	loader     Loader

	table   []*Process
	current int // pid of the Running process

	ready readyHeap

	sleepQueue *sleepQueue

	semaphores []semaphore

	events map[Event][]int

	deferCount   int
	deferAttempt bool

	interruptsDisabled bool
}

// Observer receives scheduler events; the root package's MetricsObserver
// satisfies a superset of this.
type Observer interface {
	ObserveContextSwitch()
	ObserveSleep(pid int)
	ObserveWakeup(pid int)
	ObserveSemaphoreWait(id int)
	ObserveSemaphoreSignal(id int)
}

type noopObserver struct{}

func (noopObserver) ObserveContextSwitch()      {}
func (noopObserver) ObserveSleep(int)           {}
func (noopObserver) ObserveWakeup(int)          {}
func (noopObserver) ObserveSemaphoreWait(int)   {}
func (noopObserver) ObserveSemaphoreSignal(int) {}

// NewManager creates a process manager with tableSize process slots and
// semTableSize semaphore slots, and creates process 0, the null/idle
// process the scheduler's "no ready process" path leaves running; at the
// end of a quiescent run it is the only process left Running.
func NewManager(phys *mem.Phys, trampoline *trap.Trampoline, tableSize, semTableSize int, log *logging.Logger, obs Observer) *Manager {
	if obs == nil {
		obs = noopObserver{}
	}
	m := &Manager{
		phys:       phys,
		trampoline: trampoline,
		log:        log,
		observer:   obs,
		table:      make([]*Process, tableSize),
		semaphores: make([]semaphore, semTableSize),
		events:     make(map[Event][]int),
	}
	null := m.allocSlot("null", 0)
	null.State = StateRunning
	m.current = null.Pid
	return m
}

// allocSlot finds the first Free slot, installs a fresh process record, and
// returns it. Panics if the table is full.
func (m *Manager) allocSlot(name string, priority int) *Process {
	for i, p := range m.table {
		if p == nil {
			proc := &Process{Pid: i, Name: name, Priority: priority, State: StateSuspend, Parent: -1}
			m.table[i] = proc
			return proc
		}
		if p.State == StateFree {
			*p = Process{Pid: i, Name: name, Priority: priority, State: StateSuspend, Parent: -1}
			return p
		}
	}
	panic("process: process table full")
}

// Get returns the process record for pid, or nil if the slot is Free or
// out of range.
func (m *Manager) Get(pid int) *Process {
	if pid < 0 || pid >= len(m.table) {
		return nil
	}
	p := m.table[pid]
	if p == nil || p.State == StateFree {
		return nil
	}
	return p
}

// Current returns the process currently marked Running.
func (m *Manager) Current() *Process {
	return m.Get(m.current)
}

// CurrentPID implements virtio.SchedulerHooks.
func (m *Manager) CurrentPID() int { return m.current }

// withInterruptsDisabled runs fn with the simulated SSTATUS.SIE mask held
// down, restoring the previous mask afterward; every mutating entry point
// brackets its critical section this way.
func (m *Manager) withInterruptsDisabled(fn func()) {
	prev := m.interruptsDisabled
	m.interruptsDisabled = true
	fn()
	m.interruptsDisabled = prev
}
