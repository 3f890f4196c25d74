package window

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/process"
	"github.com/ehrlich-b/go-citron/internal/trap"
)

// fakePainter is an interfaces.Painter stand-in: it just records the most
// recent framebuffer transfer and flush rectangle instead of driving a
// real virtio-gpu device.
type fakePainter struct {
	width, height uint32
	lastBuf       []byte
	flushX        uint32
	flushY        uint32
	flushW        uint32
	flushH        uint32
}

func (p *fakePainter) Resolution() (uint32, uint32) { return p.width, p.height }

func (p *fakePainter) TransferFramebuffer(buf []byte) error {
	p.lastBuf = append([]byte(nil), buf...)
	return nil
}

func (p *fakePainter) Flush(x, y, width, height uint32) error {
	p.flushX, p.flushY, p.flushW, p.flushH = x, y, width, height
	return nil
}

func newTestManager(t *testing.T, painter *fakePainter) (*Manager, *process.Process) {
	t.Helper()
	phys := mem.NewPhys(256 * constants.PageSize)
	trampoline, err := trap.NewTrampoline(phys)
	require.NoError(t, err)
	procs := process.NewManager(phys, trampoline, constants.DefaultProcessTableSize, constants.DefaultSemaphoreTableSize, logging.NewLogger(logging.DefaultConfig()), nil)

	proc, err := procs.CreateProcess("client", 1, "")
	require.NoError(t, err)

	mgr := NewManager(painter, phys, procs, logging.NewLogger(logging.DefaultConfig()))
	return mgr, proc
}

func TestCreateWindowRecordsTitleAndPosition(t *testing.T) {
	painter := &fakePainter{width: 640, height: 480}
	mgr, proc := newTestManager(t, painter)

	id, err := mgr.CreateWindow(proc.Pid, "console", 100, 50, 320, 240)
	require.NoError(t, err)

	win := mgr.windows[id]
	require.Equal(t, "console", win.Title)
	require.EqualValues(t, 100, win.X)
	require.EqualValues(t, 50, win.Y)
}

func TestCreateWindowRejectsPlacementPastDesktopEdge(t *testing.T) {
	painter := &fakePainter{width: 640, height: 480}
	mgr, proc := newTestManager(t, painter)

	_, err := mgr.CreateWindow(proc.Pid, "offscreen", 630, 0, 32, 32)
	require.Error(t, err)
}

func TestCreateWindowRejectsOversizedDimensions(t *testing.T) {
	painter := &fakePainter{width: 640, height: 480}
	mgr, proc := newTestManager(t, painter)

	_, err := mgr.CreateWindow(proc.Pid, "big", 0, 0, 1000, 1000)
	require.Error(t, err)
}

func TestMapWindowThenSyncWindowFlushesPainter(t *testing.T) {
	painter := &fakePainter{width: 640, height: 480}
	mgr, proc := newTestManager(t, painter)

	id, err := mgr.CreateWindow(proc.Pid, "term", 8, 8, 16, 16)
	require.NoError(t, err)

	const vaddr = 0x2000_0000
	require.NoError(t, mgr.MapWindow(proc.Pid, id, vaddr))

	paddr, ok := proc.PageTable.VirtToPhys(mgr.phys, vaddr)
	require.True(t, ok)

	pixels := mgr.phys.Slice(paddr, 16*16*bytesPerPixel)
	for i := range pixels {
		pixels[i] = 0xAB
	}

	require.NoError(t, mgr.SyncWindow(proc.Pid, id))
	require.Len(t, painter.lastBuf, 16*16*bytesPerPixel)
	require.EqualValues(t, 16, painter.flushW)
	require.EqualValues(t, 16, painter.flushH)
	require.Equal(t, byte(0xAB), painter.lastBuf[0])
}

func TestSyncWindowBeforeMapIsError(t *testing.T) {
	painter := &fakePainter{width: 640, height: 480}
	mgr, proc := newTestManager(t, painter)

	id, err := mgr.CreateWindow(proc.Pid, "term", 8, 8, 16, 16)
	require.NoError(t, err)

	err = mgr.SyncWindow(proc.Pid, id)
	require.Error(t, err)
}

func TestMapWindowRejectsWrongOwner(t *testing.T) {
	painter := &fakePainter{width: 640, height: 480}
	mgr, proc := newTestManager(t, painter)

	id, err := mgr.CreateWindow(proc.Pid, "term", 8, 8, 16, 16)
	require.NoError(t, err)

	err = mgr.MapWindow(proc.Pid+1, id, 0x2000_0000)
	require.Error(t, err)
}
