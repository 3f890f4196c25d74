// Package window implements the kernel's windowing collaborator: a closed
// set of kernel objects (desktop, window, pointer) a process can name
// through create_window/map_window/sync_window, composited onto a single
// virtio-gpu surface. internal/syscalls reaches it through its own
// WindowManager interface, the same seam internal/process.Loader uses, so
// this package is never imported by the dispatcher directly.
package window

import (
	"sync"

	citron "github.com/ehrlich-b/go-citron"
	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/interfaces"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/process"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

const bytesPerPixel = 4

// Desktop is the one compositor root object every Manager owns.
type Desktop struct{ width, height uint32 }

// Kind implements interfaces.Object.
func (Desktop) Kind() string { return "desktop" }

// Window is one process's on-screen surface: an id, owning pid, title, its
// position on the desktop, and the physical buffer its pixels live in once
// MapWindow has run.
type Window struct {
	ID     uint32
	Pid    int
	Title  string
	X, Y   uint32
	Width  uint32
	Height uint32
	VAddr  uintptr
	PAddr  uintptr
}

// Kind implements interfaces.Object.
func (*Window) Kind() string { return "window" }

// Pointer is the desktop-wide mouse cursor object.
type Pointer struct{ X, Y uint32 }

// Kind implements interfaces.Object.
func (*Pointer) Kind() string { return "pointer" }

var _ interfaces.Object = Desktop{}
var _ interfaces.Object = (*Window)(nil)
var _ interfaces.Object = (*Pointer)(nil)

// Manager composites every mapped window onto a single virtio-gpu surface
// and implements internal/syscalls.WindowManager.
type Manager struct {
	mu      sync.Mutex
	painter interfaces.Painter
	phys    *mem.Phys
	procs   *process.Manager
	log     *logging.Logger

	desktop Desktop
	pointer Pointer
	windows map[uint32]*Window
	nextID  uint32
}

// NewManager creates a window manager compositing onto painter's surface.
func NewManager(painter interfaces.Painter, phys *mem.Phys, procs *process.Manager, log *logging.Logger) *Manager {
	width, height := painter.Resolution()
	return &Manager{
		painter: painter,
		phys:    phys,
		procs:   procs,
		log:     log,
		desktop: Desktop{width: width, height: height},
		windows: make(map[uint32]*Window),
		nextID:  1,
	}
}

// CreateWindow implements internal/syscalls.WindowManager: allocate a
// window id titled and positioned as requested. The caller must still
// MapWindow before anything is visible.
func (m *Manager) CreateWindow(pid int, title string, x, y, width, height uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if width == 0 || height == 0 || width > m.desktop.width || height > m.desktop.height {
		return 0, citron.NewProcessError("create_window", pid, citron.ErrLoaderFailure, "invalid window dimensions")
	}
	if x+width > m.desktop.width || y+height > m.desktop.height {
		return 0, citron.NewProcessError("create_window", pid, citron.ErrLoaderFailure, "window extends past the desktop")
	}

	id := m.nextID
	m.nextID++
	m.windows[id] = &Window{ID: id, Pid: pid, Title: title, X: x, Y: y, Width: width, Height: height}
	return id, nil
}

// allocPages allocates the smallest contiguous run of physical pages
// covering n bytes, the same bump-allocator contiguity internal/block and
// internal/loader rely on for their own staging buffers.
func (m *Manager) allocPages(n uintptr) (uintptr, error) {
	pages := (n + constants.PageSize - 1) / constants.PageSize
	if pages == 0 {
		pages = 1
	}
	first := uintptr(0)
	for i := uintptr(0); i < pages; i++ {
		addr, err := m.phys.AllocFrame()
		if err != nil {
			return 0, err
		}
		if i == 0 {
			first = addr
		}
	}
	return first, nil
}

// MapWindow implements internal/syscalls.WindowManager: map a physical
// framebuffer backing the window into the owning process's address space
// at vaddr, so the process can write pixels directly into memory the
// compositor also reads from (shared-memory windowing).
func (m *Manager) MapWindow(pid int, id uint32, vaddr uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	win, ok := m.windows[id]
	if !ok || win.Pid != pid {
		return citron.NewProcessError("map_window", pid, citron.ErrLoaderFailure, "unknown window id")
	}

	p := m.procs.Get(pid)
	if p == nil {
		return citron.NewProcessError("map_window", pid, citron.ErrProcessNotFound, "")
	}

	size := uintptr(win.Width) * uintptr(win.Height) * bytesPerPixel
	paddr, err := m.allocPages(size)
	if err != nil {
		return citron.WrapError("map_window", err)
	}

	p.PageTable.MapRange(m.phys, vaddr, paddr, size, uapi.PTERead|uapi.PTEWrite|uapi.PTEUser)

	win.VAddr = vaddr
	win.PAddr = paddr
	return nil
}

// SyncWindow implements internal/syscalls.WindowManager: read the window's
// mapped framebuffer back out of the owning process's address space and
// flush it to the virtio-gpu device, restricted to the window's rectangle
// instead of the whole screen.
func (m *Manager) SyncWindow(pid int, id uint32) error {
	m.mu.Lock()
	win, ok := m.windows[id]
	m.mu.Unlock()
	if !ok || win.Pid != pid {
		return citron.NewProcessError("sync_window", pid, citron.ErrLoaderFailure, "unknown window id")
	}
	if win.PAddr == 0 {
		return citron.NewProcessError("sync_window", pid, citron.ErrLoaderFailure, "window not mapped")
	}

	size := int(win.Width) * int(win.Height) * bytesPerPixel
	buf := m.phys.Slice(win.PAddr, size)

	if err := m.painter.TransferFramebuffer(buf); err != nil {
		return citron.WrapError("sync_window", err)
	}
	return m.painter.Flush(win.X, win.Y, win.Width, win.Height)
}
