// Package input implements the virtio-input backend over internal/virtio's
// transport core. Unlike block and GPU, input events are device-initiated:
// the driver keeps exactly one device-writable event buffer posted at all
// times and only learns its contents when something external fills it in.
// There is no real keyboard or mouse under this simulation, so InjectEvent
// stands in for the hardware side.
package input

import (
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/process"
	"github.com/ehrlich-b/go-citron/internal/uapi"
	"github.com/ehrlich-b/go-citron/internal/virtio"
)

// Driver owns one virtio-input device and the small per-kind queues drained
// through PopMouseEvent/PopKeyboardEvent; no syscall reads them.
type Driver struct {
	dev   *virtio.Device
	phys  *mem.Phys
	procs *process.Manager
	log   *logging.Logger

	postedHead uint16
	postedAddr uintptr

	mouseEvents []uapi.InputEvent
	keyEvents   []uapi.InputEvent
}

// New completes the virtio-input handshake and posts the first event
// buffer. A mouse device and a keyboard device are both virtio-input,
// distinguished only by their slot index at the MMIO scan level; the
// kernel wires one Driver per physical input device it finds.
func New(phys *mem.Phys, procs *process.Manager, log *logging.Logger) (*Driver, error) {
	dev, err := virtio.NewDevice(phys, uapi.DeviceIDInput, procs, log)
	if err != nil {
		return nil, err
	}
	d := &Driver{dev: dev, phys: phys, procs: procs, log: log}
	if err := d.post(); err != nil {
		return nil, err
	}
	return d, nil
}

// post allocates and publishes a fresh device-writable event buffer,
// recording its head descriptor and address so InjectEvent can fill it in
// and retire it later. PostChain, not SubmitChain: nothing waits on an
// input buffer, it sits in the ring until the device has an event.
func (d *Driver) post() error {
	addr, err := d.phys.AllocFrame()
	if err != nil {
		return err
	}
	head := d.dev.PostChain([]virtio.ChainDesc{
		{Addr: addr, Len: uapi.InputEventSize, DeviceWritable: true},
	})
	d.postedHead = head
	d.postedAddr = addr
	return nil
}

// InjectEvent simulates the device filling the currently posted buffer
// with ev: writes it into the posted address, retires the descriptor
// chain through the ring the same way real hardware's completion would,
// decodes and queues the event, signals the matching wait condition, and
// immediately posts a replacement buffer so one is always outstanding.
func (d *Driver) InjectEvent(ev uapi.InputEvent) error {
	uapi.MarshalInputEvent(d.phys.Slice(d.postedAddr, uapi.InputEventSize), ev)
	d.dev.CompleteHead(d.postedHead, uapi.InputEventSize)
	d.handle(ev)
	return d.post()
}

func (d *Driver) handle(ev uapi.InputEvent) {
	switch ev.Type {
	case uapi.InputEVKey:
		d.keyEvents = append(d.keyEvents, ev)
		d.procs.EventSignal(process.EventKeyboardAvailable)
	case uapi.InputEVRel, uapi.InputEVAbs:
		d.mouseEvents = append(d.mouseEvents, ev)
		d.procs.EventSignal(process.EventMouseAvailable)
	}
}

// PopMouseEvent removes and returns the oldest queued mouse event, if any.
func (d *Driver) PopMouseEvent() (uapi.InputEvent, bool) {
	if len(d.mouseEvents) == 0 {
		return uapi.InputEvent{}, false
	}
	ev := d.mouseEvents[0]
	d.mouseEvents = d.mouseEvents[1:]
	return ev, true
}

// PopKeyboardEvent removes and returns the oldest queued keyboard event, if
// any.
func (d *Driver) PopKeyboardEvent() (uapi.InputEvent, bool) {
	if len(d.keyEvents) == 0 {
		return uapi.InputEvent{}, false
	}
	ev := d.keyEvents[0]
	d.keyEvents = d.keyEvents[1:]
	return ev, true
}
