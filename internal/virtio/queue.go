package virtio

import (
	"fmt"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

// SchedulerHooks is the process-manager surface the transport core needs:
// the per-device semaphore (serializing submission) and the io_wait/
// io_signal cooperative-blocking pair. internal/process.Manager
// implements this; internal/virtio
// never imports internal/process, avoiding an import cycle since
// internal/block/gpu/input (which sit on top of virtio) are themselves
// collaborators the process/syscalls layer calls into.
type SchedulerHooks interface {
	CreateSemaphore(count int) int
	WaitSemaphore(sid int)
	SignalSemaphore(sid int)
	IOWait(pid int)
	IOSignal(pid int)
	Schedule()
	CurrentPID() int
}

// Queue is one virtqueue: descriptor table, available ring, used ring, and
// the driver-side bookkeeping (free-descriptor bitmap, acknowledged-used
// cursor, pending-request record).
type Queue struct {
	phys *mem.Phys

	descAddr  uintptr
	availAddr uintptr
	usedAddr  uintptr

	size int
	free []bool // true = descriptor slot is in use

	usedCursor uint16 // last used.idx the driver has consumed

	pending map[uint16]pendingRequest // descriptor chain head -> waiter
}

type pendingRequest struct {
	pid       int
	headerBuf uintptr
	writable  bool // true if this is a block read/write that must check status
}

// NewQueue allocates the three virtqueue regions (descriptor table 16-byte
// aligned, available ring 2-byte aligned, used ring 2-byte aligned) and
// returns a Queue of constants.RingSize entries.
func NewQueue(phys *mem.Phys) (*Queue, error) {
	size := constants.RingSize

	descAddr, err := phys.AllocFrame()
	if err != nil {
		return nil, fmt.Errorf("virtio: alloc descriptor table: %w", err)
	}
	availAddr, err := phys.AllocFrame()
	if err != nil {
		return nil, fmt.Errorf("virtio: alloc avail ring: %w", err)
	}
	usedAddr, err := phys.AllocFrame()
	if err != nil {
		return nil, fmt.Errorf("virtio: alloc used ring: %w", err)
	}

	return &Queue{
		phys:      phys,
		descAddr:  descAddr,
		availAddr: availAddr,
		usedAddr:  usedAddr,
		size:      size,
		free:      make([]bool, size),
		pending:   make(map[uint16]pendingRequest),
	}, nil
}

// Publish writes the three region physical addresses into the MMIO window
// and marks the queue ready, the remaining steps of the handshake beyond
// feature negotiation: select queue 0, publish the queue size, publish the
// low halves of the three region addresses, mark the queue ready.
func (q *Queue) Publish(w *MMIOWindow) {
	w.writeReg(uapi.RegQueueSel, 0)
	w.writeReg(uapi.RegQueueNum, uint32(q.size))
	w.writeReg(uapi.RegQueueDescLow, uint32(q.descAddr))
	w.writeReg(uapi.RegQueueDriverLow, uint32(q.availAddr))
	w.writeReg(uapi.RegQueueDeviceLow, uint32(q.usedAddr))
	w.writeReg(uapi.RegQueueReady, 1)
}

// descSlice returns the 16-byte slice for descriptor i.
func (q *Queue) descSlice(i uint16) []byte {
	return q.phys.Slice(q.descAddr+uintptr(i)*uapi.DescSize, uapi.DescSize)
}

func (q *Queue) setDesc(i uint16, d uapi.Desc) {
	uapi.MarshalDesc(q.descSlice(i), d)
}

func (q *Queue) getDesc(i uint16) uapi.Desc {
	return uapi.UnmarshalDesc(q.descSlice(i))
}

// allocDescs grabs n free descriptor indices from the bitmap. Panics if the
// table is exhausted; descriptor exhaustion is unrecoverable.
func (q *Queue) allocDescs(n int) []uint16 {
	out := make([]uint16, 0, n)
	for i := 0; i < q.size && len(out) < n; i++ {
		if !q.free[i] {
			q.free[i] = true
			out = append(out, uint16(i))
		}
	}
	if len(out) != n {
		for _, i := range out {
			q.free[i] = false
		}
		panic("virtio: descriptor table exhausted")
	}
	return out
}

func (q *Queue) freeDescChain(head uint16) {
	i := head
	for {
		d := q.getDesc(i)
		q.free[i] = false
		if d.Flags&uapi.DescFlagNext == 0 {
			break
		}
		i = d.Next
	}
}

// availIdx/setAvailIdx and friends address the ring headers directly in
// simulated RAM, matching the byte layout a real driver would dereference.
func (q *Queue) availIdx() uint16 {
	buf := q.phys.Slice(q.availAddr+2, 2)
	return uint16(buf[0]) | uint16(buf[1])<<8
}

func (q *Queue) setAvailIdx(v uint16) {
	buf := q.phys.Slice(q.availAddr+2, 2)
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
}

func (q *Queue) setAvailRing(slot int, descHead uint16) {
	off := q.availAddr + uapi.AvailHeaderSize + uintptr(slot)*2
	buf := q.phys.Slice(off, 2)
	buf[0] = byte(descHead)
	buf[1] = byte(descHead >> 8)
}

func (q *Queue) usedIdx() uint16 {
	buf := q.phys.Slice(q.usedAddr+2, 2)
	return uint16(buf[0]) | uint16(buf[1])<<8
}

func (q *Queue) usedElem(slot int) uapi.UsedElem {
	off := q.usedAddr + uapi.UsedHeaderSize + uintptr(slot)*uapi.UsedElemSize
	buf := q.phys.Slice(off, uapi.UsedElemSize)
	return uapi.UsedElem{
		ID:  uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24,
		Len: uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24,
	}
}

// memoryFence is a no-op in this simulation: there is one goroutine driving
// the scheduler loop, so there is no reordering to guard against. It is
// still called where a real driver needs a fence (bracketing the avail.idx
// update), documenting the ordering contract an implementation against
// real hardware must enforce.
func memoryFence() {}

// Device wires one Queue to its MMIO window, a device-semaphore id, and the
// scheduler hooks needed for io_wait/io_signal. Block, GPU, and input all
// construct one of these and add their own request encoding on top.
type Device struct {
	Window   *MMIOWindow
	Queue    *Queue
	hooks    SchedulerHooks
	semID    int
	log      *logging.Logger
	deviceID uint32
}

// NewDevice completes the handshake, builds the queue, and creates the
// device's one-permit semaphore.
func NewDevice(phys *mem.Phys, deviceID uint32, hooks SchedulerHooks, log *logging.Logger) (*Device, error) {
	w := NewMMIOWindow(deviceID)
	if err := Negotiate(w, log); err != nil {
		return nil, err
	}
	q, err := NewQueue(phys)
	if err != nil {
		return nil, err
	}
	q.Publish(w)
	Finalize(w)

	return &Device{
		Window:   w,
		Queue:    q,
		hooks:    hooks,
		semID:    hooks.CreateSemaphore(1),
		log:      log,
		deviceID: deviceID,
	}, nil
}

// Request is one submission: a header buffer, an optional payload buffer
// (device-writable when DeviceWritable is true), and a status byte buffer.
// Block/GPU/input backends build one of these per operation.
type Request struct {
	Header         uintptr
	HeaderLen      uint32
	Payload        uintptr
	PayloadLen     uint32
	DeviceWritable bool
	Status         uintptr
	CheckStatus    bool // panic on non-zero status (block reads/writes)
}

// Submit runs the per-request life cycle: acquire the
// device semaphore, build the descriptor chain, publish it to the avail
// ring, block the caller on io_wait, kick the device via queue-notify, and
// yield. It returns the head descriptor index, the handle CompleteHead
// needs to retire the request once the device side (real or, in this
// simulation, the backend driver itself) has produced a response.
func (d *Device) Submit(req Request) uint16 {
	d.hooks.WaitSemaphore(d.semID)

	descs := d.queueDescsFor(req)

	slot := int(d.Queue.availIdx()) % d.Queue.size
	d.Queue.setAvailRing(slot, descs[0])
	memoryFence()
	d.Queue.setAvailIdx(d.Queue.availIdx() + 1)
	memoryFence()

	pid := d.hooks.CurrentPID()
	d.Queue.pending[descs[0]] = pendingRequest{
		pid:       pid,
		headerBuf: req.Header,
		writable:  req.CheckStatus,
	}

	d.hooks.IOWait(pid)
	d.Window.writeReg(uapi.RegQueueNotify, 0)
	d.hooks.Schedule()
	return descs[0]
}

func (d *Device) queueDescsFor(req Request) []uint16 {
	n := 2
	if req.PayloadLen > 0 {
		n = 3
	}
	descs := d.Queue.allocDescs(n)

	headerFlags := uapi.DescFlagNext
	d.Queue.setDesc(descs[0], uapi.Desc{Addr: uint64(req.Header), Len: req.HeaderLen, Flags: uint16(headerFlags), Next: descs[1]})

	if req.PayloadLen > 0 {
		payloadFlags := uapi.DescFlagNext
		if req.DeviceWritable {
			payloadFlags |= uapi.DescFlagWrite
		}
		d.Queue.setDesc(descs[1], uapi.Desc{Addr: uint64(req.Payload), Len: req.PayloadLen, Flags: uint16(payloadFlags), Next: descs[2]})
		d.Queue.setDesc(descs[2], uapi.Desc{Addr: uint64(req.Status), Len: 1, Flags: uapi.DescFlagWrite})
	} else {
		d.Queue.setDesc(descs[1], uapi.Desc{Addr: uint64(req.Status), Len: 1, Flags: uapi.DescFlagWrite})
	}

	return descs
}

// ChainDesc is one descriptor in a caller-built chain. Block's Request type
// only models a fixed header/payload/status shape; virtio-gpu's variable-
// length command/response pairs and virtio-input's plain device-writable
// event buffers don't fit that shape, so they build a chain directly.
type ChainDesc struct {
	Addr           uintptr
	Len            uint32
	DeviceWritable bool
}

func (q *Queue) descsForChain(descs []ChainDesc) []uint16 {
	heads := q.allocDescs(len(descs))
	for i, cd := range heads {
		flags := uint16(0)
		if i < len(descs)-1 {
			flags |= uapi.DescFlagNext
		}
		if descs[i].DeviceWritable {
			flags |= uapi.DescFlagWrite
		}
		next := uint16(0)
		if i < len(heads)-1 {
			next = heads[i+1]
		}
		q.setDesc(cd, uapi.Desc{Addr: uint64(descs[i].Addr), Len: descs[i].Len, Flags: flags, Next: next})
	}
	return heads
}

// SubmitChain is Submit generalized to an arbitrary caller-built descriptor
// chain instead of Request's fixed header/payload/status shape: it still
// acquires the device semaphore, publishes to the avail ring, blocks the
// caller on io_wait, and kicks the device. It
// returns the head descriptor index; completion never checks a status byte
// the way block requests do, so the caller retires the chain itself with
// CompleteHead once a response (or nothing, for a plain device-writable
// buffer) is ready.
func (d *Device) SubmitChain(descs []ChainDesc) uint16 {
	d.hooks.WaitSemaphore(d.semID)

	heads := d.Queue.descsForChain(descs)

	slot := int(d.Queue.availIdx()) % d.Queue.size
	d.Queue.setAvailRing(slot, heads[0])
	memoryFence()
	d.Queue.setAvailIdx(d.Queue.availIdx() + 1)
	memoryFence()

	pid := d.hooks.CurrentPID()
	d.Queue.pending[heads[0]] = pendingRequest{pid: pid, writable: false}

	d.hooks.IOWait(pid)
	d.Window.writeReg(uapi.RegQueueNotify, 0)
	d.hooks.Schedule()
	return heads[0]
}

// PostChain publishes a caller-built chain without blocking: no io_wait, no
// yield. Device-initiated traffic (virtio-input's standing event buffers)
// uses this: nothing is waiting on the completion, the buffer just sits in
// the ring until the device fills it. The device semaphore is still
// acquired, released by the eventual Complete, preserving the one-in-flight
// contract the blocking paths rely on.
func (d *Device) PostChain(descs []ChainDesc) uint16 {
	d.hooks.WaitSemaphore(d.semID)

	heads := d.Queue.descsForChain(descs)

	slot := int(d.Queue.availIdx()) % d.Queue.size
	d.Queue.setAvailRing(slot, heads[0])
	memoryFence()
	d.Queue.setAvailIdx(d.Queue.availIdx() + 1)
	memoryFence()

	// pid -1: no process to io_signal when this chain retires.
	d.Queue.pending[heads[0]] = pendingRequest{pid: -1}

	d.Window.writeReg(uapi.RegQueueNotify, 0)
	return heads[0]
}

// Complete drains the used ring after an interrupt: acks the interrupt,
// walks used.ring from the saved cursor to used.idx, frees each descriptor
// chain, signals the waiting process, and releases the device semaphore.
func (d *Device) Complete() {
	d.Window.AckInterrupt()

	for d.Queue.usedCursor != d.Queue.usedIdx() {
		slot := int(d.Queue.usedCursor) % d.Queue.size
		elem := d.Queue.usedElem(slot)
		head := uint16(elem.ID)

		req, ok := d.Queue.pending[head]
		if !ok {
			panic("virtio: used entry for unknown descriptor chain")
		}
		delete(d.Queue.pending, head)

		if req.writable {
			status := d.Queue.phys.Slice(d.statusAddrFor(head), 1)
			if status[0] != 0 {
				panic(fmt.Sprintf("virtio: request on device %d completed with non-zero status", d.deviceID))
			}
		}

		d.Queue.freeDescChain(head)
		if req.pid >= 0 {
			d.hooks.IOSignal(req.pid)
		}
		d.hooks.SignalSemaphore(d.semID)

		d.Queue.usedCursor++
	}
}

// CompleteHead retires a single in-flight descriptor chain: it appends the
// used-ring entry (head, responseLen) a real device would write on
// completion, then runs the same Complete drain Submit's caller would see
// driven off a PLIC interrupt. Block/GPU backends call this synchronously
// right after producing their response, since this simulation has no
// separate hardware thread to deliver the completion asynchronously; the
// driver plays both driver and device roles, the way virtio_test.go's
// simulateUsedCompletion stands in for real hardware in tests.
func (d *Device) CompleteHead(head uint16, responseLen uint32) {
	slot := int(d.Queue.usedIdx()) % d.Queue.size
	off := d.Queue.usedAddr + uapi.UsedHeaderSize + uintptr(slot)*uapi.UsedElemSize
	buf := d.Queue.phys.Slice(off, uapi.UsedElemSize)
	buf[0] = byte(head)
	buf[1] = byte(head >> 8)
	buf[2] = byte(uint32(head) >> 16)
	buf[3] = byte(uint32(head) >> 24)
	buf[4] = byte(responseLen)
	buf[5] = byte(responseLen >> 8)
	buf[6] = byte(responseLen >> 16)
	buf[7] = byte(responseLen >> 24)

	idx := d.Queue.usedIdx() + 1
	idxBuf := d.Queue.phys.Slice(d.Queue.usedAddr+2, 2)
	idxBuf[0] = byte(idx)
	idxBuf[1] = byte(idx >> 8)

	d.Window.RaiseInterrupt()
	d.Complete()
}

// statusAddrFor walks the chain from head to its tail (the status
// descriptor, the one with DescFlagNext clear) and returns its address.
func (d *Device) statusAddrFor(head uint16) uintptr {
	i := head
	for {
		desc := d.Queue.getDesc(i)
		if desc.Flags&uapi.DescFlagNext == 0 {
			return uintptr(desc.Addr)
		}
		i = desc.Next
	}
}

// FreeCount returns the number of free descriptor slots, used by tests to
// assert the bitmap returns to fully-free once no request is in flight.
func (d *Device) FreeCount() int {
	n := 0
	for _, used := range d.Queue.free {
		if !used {
			n++
		}
	}
	return n
}
