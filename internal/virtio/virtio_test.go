package virtio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/mem"
)

// fakeHooks is a minimal SchedulerHooks stand-in: semaphores are plain
// counters, io_wait/io_signal/schedule just record calls. Good enough to
// exercise the transport core's submit/complete life cycle in isolation
// from internal/process.
type fakeHooks struct {
	sems       map[int]int
	nextSemID  int
	ioWaits    []int
	ioSignals  []int
	schedules  int
	currentPid int
}

func newFakeHooks() *fakeHooks {
	return &fakeHooks{sems: make(map[int]int), currentPid: 1}
}

func (f *fakeHooks) CreateSemaphore(count int) int {
	f.nextSemID++
	f.sems[f.nextSemID] = count
	return f.nextSemID
}

func (f *fakeHooks) WaitSemaphore(sid int)   { f.sems[sid]-- }
func (f *fakeHooks) SignalSemaphore(sid int) { f.sems[sid]++ }
func (f *fakeHooks) IOWait(pid int)          { f.ioWaits = append(f.ioWaits, pid) }
func (f *fakeHooks) IOSignal(pid int)        { f.ioSignals = append(f.ioSignals, pid) }
func (f *fakeHooks) Schedule()               { f.schedules++ }
func (f *fakeHooks) CurrentPID() int         { return f.currentPid }

func TestHandshakeSetsDriverOK(t *testing.T) {
	phys := mem.NewPhys(16 * constants.PageSize)
	hooks := newFakeHooks()

	dev, err := NewDevice(phys, DeviceIDForTest, hooks, nil)
	require.NoError(t, err)

	require.NotZero(t, dev.Window.ReadReg(0x070)&4) // DRIVER_OK (bit 2), set by Finalize
}

func TestSubmitAndCompleteConserveDescriptors(t *testing.T) {
	phys := mem.NewPhys(16 * constants.PageSize)
	hooks := newFakeHooks()

	dev, err := NewDevice(phys, DeviceIDForTest, hooks, nil)
	require.NoError(t, err)

	full := dev.FreeCount()
	require.Equal(t, constants.RingSize, full)

	headerAddr, err := phys.AllocFrame()
	require.NoError(t, err)
	payloadAddr, err := phys.AllocFrame()
	require.NoError(t, err)
	statusAddr, err := phys.AllocFrame()
	require.NoError(t, err)
	phys.Slice(statusAddr, 1)[0] = 0

	dev.Submit(Request{
		Header:         headerAddr,
		HeaderLen:      16,
		Payload:        payloadAddr,
		PayloadLen:     512,
		DeviceWritable: true,
		Status:         statusAddr,
		CheckStatus:    true,
	})

	require.Less(t, dev.FreeCount(), full)
	require.Len(t, hooks.ioWaits, 1)

	// Simulate the device side appending a used entry and raising the
	// interrupt, the way the block/gpu/input backends would after their
	// virtual I/O completes.
	simulateUsedCompletion(t, dev)
	dev.Window.RaiseInterrupt()
	dev.Complete()

	require.Equal(t, full, dev.FreeCount())
	require.Len(t, hooks.ioSignals, 1)
	require.Equal(t, hooks.currentPid, hooks.ioSignals[0])
}

// simulateUsedCompletion appends one used-ring entry for the descriptor
// chain head the driver just published, standing in for the simulated
// device's completion.
func simulateUsedCompletion(t *testing.T, dev *Device) {
	t.Helper()
	q := dev.Queue
	var head uint16
	for h := range q.pending {
		head = h
	}
	slot := int(q.usedIdx()) % q.size
	off := q.usedAddr + 4 + uintptr(slot)*8
	buf := q.phys.Slice(off, 8)
	buf[0] = byte(head)
	buf[1] = byte(head >> 8)
	idx := q.usedIdx() + 1
	idxBuf := q.phys.Slice(q.usedAddr+2, 2)
	idxBuf[0] = byte(idx)
	idxBuf[1] = byte(idx >> 8)
}

func TestCompleteHeadConservesDescriptorsAndSignals(t *testing.T) {
	phys := mem.NewPhys(16 * constants.PageSize)
	hooks := newFakeHooks()

	dev, err := NewDevice(phys, DeviceIDForTest, hooks, nil)
	require.NoError(t, err)

	full := dev.FreeCount()

	addr, err := phys.AllocFrame()
	require.NoError(t, err)

	head := dev.SubmitChain([]ChainDesc{{Addr: addr, Len: 64, DeviceWritable: true}})
	require.Less(t, dev.FreeCount(), full)

	dev.CompleteHead(head, 64)

	require.Equal(t, full, dev.FreeCount())
	require.Len(t, hooks.ioSignals, 1)
}

func TestPostChainDoesNotBlockOrSignal(t *testing.T) {
	phys := mem.NewPhys(16 * constants.PageSize)
	hooks := newFakeHooks()

	dev, err := NewDevice(phys, DeviceIDForTest, hooks, nil)
	require.NoError(t, err)

	full := dev.FreeCount()

	addr, err := phys.AllocFrame()
	require.NoError(t, err)

	head := dev.PostChain([]ChainDesc{{Addr: addr, Len: 64, DeviceWritable: true}})
	require.Empty(t, hooks.ioWaits, "a posted buffer has no waiter to park")
	require.Zero(t, hooks.schedules)

	dev.CompleteHead(head, 64)
	require.Equal(t, full, dev.FreeCount())
	require.Empty(t, hooks.ioSignals, "no waiter, no io_signal")
}

const DeviceIDForTest = 2
