// Package syscalls implements the kernel's user-facing syscall surface:
// a0 carries the syscall number on entry, a1..a7 carry arguments, and the
// return value is written back into a0. Every case decodes its arguments
// out of the caller's trap frame, calls the owning collaborator (process
// manager, file system, window manager), and completes through the single
// trap-return path that advances pc past the ecall, except kill, a blocked
// wait_exit, and a successful execve, which return without touching a0/pc.
package syscalls

import (
	"fmt"
	"io"

	citron "github.com/ehrlich-b/go-citron"
	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/interfaces"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/process"
	"github.com/ehrlich-b/go-citron/internal/trap"
)

// WindowManager is the collaborator create_window/map_window/sync_window
// dispatch to; internal/window's compositor satisfies it. Declared here,
// not imported from internal/window, for the same reason internal/process
// declares Loader instead of importing internal/loader.
type WindowManager interface {
	CreateWindow(pid int, title string, x, y, width, height uint32) (id uint32, err error)
	MapWindow(pid int, id uint32, vaddr uintptr) error
	SyncWindow(pid int, id uint32) error
}

type openFile struct {
	file interfaces.File
	pos  int64
}

// firstFileFD is the lowest descriptor open hands out; 0-2 are the
// stdin/stdout/stderr console descriptors, which have no table entry.
const firstFileFD = 3

// Dispatcher owns per-process file-descriptor tables and routes decoded
// syscalls to the process manager and its collaborators.
type Dispatcher struct {
	procs  *process.Manager
	fs     interfaces.FileSystem
	window WindowManager
	log    *logging.Logger

	files  map[int]map[int]*openFile
	nextFD map[int]int
}

// NewDispatcher builds a syscall dispatcher over procs. fs and window may be
// nil; syscalls that need them return ErrDeviceUninitialised if so.
func NewDispatcher(procs *process.Manager, fs interfaces.FileSystem, window WindowManager, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		procs:  procs,
		fs:     fs,
		window: window,
		log:    log,
		files:  make(map[int]map[int]*openFile),
		nextFD: make(map[int]int),
	}
}

// Dispatch decodes pid's trap frame, performs the named syscall, and writes
// the result back into a0 before advancing pc past the ecall.
func (d *Dispatcher) Dispatch(pid int) {
	p := d.procs.Get(pid)
	if p == nil {
		return
	}
	tf := p.Frame.Load()
	args := tf.ArgRegs()
	num := tf.A0

	var ret uint64
	switch num {
	case constants.SysRead:
		ret = d.sysRead(p, int(args[0]), args[1], uint32(args[2]))
	case constants.SysWrite:
		ret = d.sysWrite(p, int(args[0]), args[1], uint32(args[2]))
	case constants.SysSeek:
		ret = d.sysSeek(p, int(args[0]), int64(args[1]), int(args[2]))
	case constants.SysOpen:
		ret = d.sysOpen(p, args[0], uint32(args[1]))
	case constants.SysSleep:
		d.procs.Sleep(pid, int(args[0]))
		ret = 0
	case constants.SysWaitExit:
		var blocked bool
		ret, blocked = d.sysWaitExit(p)
		if blocked {
			// Leave the trap frame untouched: pc still points at this
			// ecall, so the next time this pid runs it re-executes
			// wait_exit from scratch instead of resuming mid-syscall.
			d.procs.Schedule()
			return
		}
	case constants.SysFork:
		ret = d.sysFork(p)
	case constants.SysKill:
		// kill takes no arguments: the caller terminates itself. Its trap
		// frame is freed with the rest of its resources, so there is
		// nothing to write a return value into.
		delete(d.files, pid)
		delete(d.nextFD, pid)
		d.procs.Kill(pid)
		d.procs.Schedule()
		return
	case constants.SysExecve:
		ret = d.sysExecve(p, args[0])
		if ret == 0 {
			// execve does not return on success: the replacement trap
			// frame already carries the new image's entry point and
			// stack, and must not be overwritten with the old one.
			d.procs.Schedule()
			return
		}
	case constants.SysCreateWindow:
		ret = d.sysCreateWindow(p, args[0], uint32(args[1]), uint32(args[2]), uint32(args[3]), uint32(args[4]), uint32(args[5]))
	case constants.SysMapWindow:
		ret = d.sysMapWindow(p, uint32(args[0]), uintptr(args[1]))
	case constants.SysSyncWindow:
		ret = d.sysSyncWindow(p, uint32(args[0]))
	default:
		citron.FatalError("dispatch", fmt.Sprintf("unknown syscall number %d from pid %d", num, pid))
	}

	// trap.Return is userret collapsed to a call: writes the result into
	// a0 and advances pc past the ecall, the completion path shared by every
	// case above that did not return early.
	trap.Return(tf, ret, tf.KernelSATP, tf.KernelSP, tf.KernelTrap, tf.KernelHartID)
	p.Frame.Store(tf)
	d.procs.Schedule()
}

// readString reads a NUL-terminated string out of the calling process's
// address space starting at vaddr, translating through its page table.
func (d *Dispatcher) readString(p *process.Process, vaddr uint64, max int) (string, bool) {
	buf := make([]byte, 0, 64)
	for i := 0; i < max; i++ {
		b, ok := d.procs.ReadUserByte(p.PageTable, uintptr(vaddr)+uintptr(i))
		if !ok {
			return "", false
		}
		if b == 0 {
			return string(buf), true
		}
		buf = append(buf, b)
	}
	return string(buf), true
}

func errRet(err error) uint64 {
	if err == nil {
		return 0
	}
	return ^uint64(0) // -1: every syscall signals failure with -1 in a0
}

func (d *Dispatcher) fdTable(pid int) map[int]*openFile {
	t, ok := d.files[pid]
	if !ok {
		t = make(map[int]*openFile)
		d.files[pid] = t
	}
	return t
}

func (d *Dispatcher) sysOpen(p *process.Process, pathVAddr uint64, flags uint32) uint64 {
	if d.fs == nil {
		return errRet(citron.NewProcessError("open", p.Pid, citron.ErrDeviceUninitialised, "no filesystem mounted"))
	}
	path, ok := d.readString(p, pathVAddr, 256)
	if !ok {
		return errRet(citron.NewProcessError("open", p.Pid, citron.ErrFileNotExist, "unreadable path"))
	}
	f, err := d.fs.Open(path)
	if err != nil {
		return errRet(citron.NewProcessError("open", p.Pid, citron.ErrFileNotExist, err.Error()))
	}
	table := d.fdTable(p.Pid)
	fd := d.nextFD[p.Pid]
	if fd < firstFileFD {
		fd = firstFileFD
	}
	d.nextFD[p.Pid] = fd + 1
	table[fd] = &openFile{file: f}
	return uint64(fd)
}

func (d *Dispatcher) sysRead(p *process.Process, fd int, bufVAddr uint64, length uint32) uint64 {
	if fd >= 0 && fd < firstFileFD {
		return 0
	}
	table := d.fdTable(p.Pid)
	of, ok := table[fd]
	if !ok {
		return errRet(citron.NewProcessError("read", p.Pid, citron.ErrFileNotOpen, "fd not open"))
	}
	buf := make([]byte, length)
	n, err := of.file.ReadAt(buf, of.pos)
	if err != nil && err != io.EOF {
		return errRet(citron.WrapError("read", err))
	}
	of.pos += int64(n)
	d.procs.WriteUser(p.PageTable, uintptr(bufVAddr), buf[:n])
	return uint64(n)
}

func (d *Dispatcher) sysWrite(p *process.Process, fd int, bufVAddr uint64, length uint32) uint64 {
	// fd 1/2 are stdout/stderr: console writes need no backing file.
	// Anything else must be open.
	data := d.procs.ReadUser(p.PageTable, uintptr(bufVAddr), int(length))
	if fd == 1 || fd == 2 {
		d.log.Debugf("pid=%d stdout: %s", p.Pid, string(data))
		return uint64(length)
	}
	table := d.fdTable(p.Pid)
	_, ok := table[fd]
	if !ok {
		return errRet(citron.NewProcessError("write", p.Pid, citron.ErrFileNotOpen, "fd not open"))
	}
	return uint64(length)
}

func (d *Dispatcher) sysSeek(p *process.Process, fd int, offset int64, whence int) uint64 {
	table := d.fdTable(p.Pid)
	of, ok := table[fd]
	if !ok {
		return errRet(citron.NewProcessError("seek", p.Pid, citron.ErrFileNotOpen, "fd not open"))
	}
	switch whence {
	case constants.SeekSet:
		of.pos = offset
	case constants.SeekCur:
		of.pos += offset
	case constants.SeekEnd:
		of.pos = of.file.Size() + offset
	default:
		return errRet(citron.NewProcessError("seek", p.Pid, citron.ErrUnknownSeekOption, "unknown whence"))
	}
	return uint64(of.pos)
}

func (d *Dispatcher) sysWaitExit(p *process.Process) (uint64, bool) {
	child, found, wouldBlock := d.procs.WaitExit(p.Pid)
	if wouldBlock {
		return 0, true
	}
	if !found {
		return errRet(citron.NewProcessError("wait_exit", p.Pid, citron.ErrProcessNotFound, "no children")), false
	}
	delete(d.files, child)
	delete(d.nextFD, child)
	return uint64(child), false
}

func (d *Dispatcher) sysFork(p *process.Process) uint64 {
	child, err := d.procs.Fork(p.Pid)
	if err != nil {
		return errRet(citron.WrapError("fork", err))
	}
	d.procs.Ready(child.Pid)
	// The child's own a0 was already zeroed by Fork; the parent's return
	// value is the child's pid, written back by the caller in Dispatch.
	return uint64(child.Pid)
}

func (d *Dispatcher) sysExecve(p *process.Process, pathVAddr uint64) uint64 {
	path, ok := d.readString(p, pathVAddr, 256)
	if !ok {
		return errRet(citron.NewProcessError("execve", p.Pid, citron.ErrFileNotExist, "unreadable path"))
	}
	if err := d.procs.Execve(p.Pid, path); err != nil {
		return errRet(citron.WrapError("execve", err))
	}
	return 0
}

func (d *Dispatcher) sysCreateWindow(p *process.Process, titleVAddr uint64, titleLen, x, y, width, height uint32) uint64 {
	if d.window == nil {
		return errRet(citron.NewProcessError("create_window", p.Pid, citron.ErrDeviceUninitialised, "no window manager"))
	}
	title := string(d.procs.ReadUser(p.PageTable, uintptr(titleVAddr), int(titleLen)))
	id, err := d.window.CreateWindow(p.Pid, title, x, y, width, height)
	if err != nil {
		return errRet(citron.WrapError("create_window", err))
	}
	return uint64(id)
}

func (d *Dispatcher) sysMapWindow(p *process.Process, id uint32, vaddr uintptr) uint64 {
	if d.window == nil {
		return errRet(citron.NewProcessError("map_window", p.Pid, citron.ErrDeviceUninitialised, "no window manager"))
	}
	if err := d.window.MapWindow(p.Pid, id, vaddr); err != nil {
		// map_window reports an unknown window id as 1, not -1.
		return 1
	}
	return 0
}

func (d *Dispatcher) sysSyncWindow(p *process.Process, id uint32) uint64 {
	if d.window == nil {
		return errRet(citron.NewProcessError("sync_window", p.Pid, citron.ErrDeviceUninitialised, "no window manager"))
	}
	if err := d.window.SyncWindow(p.Pid, id); err != nil {
		return errRet(citron.WrapError("sync_window", err))
	}
	return 0
}
