// Package virtio implements the transport core shared by the block, GPU,
// and input drivers: the MMIO device handshake, virtqueue ring
// construction, descriptor allocation, and interrupt-driven completion.
package virtio

import (
	"encoding/binary"
	"fmt"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

// MMIOWindow simulates one virtio-mmio 4 KiB register window. Real hardware
// exposes these as memory-mapped registers the CPU reads/writes directly;
// here they are a byte slice addressed the same way internal/mem.Phys
// addresses RAM, keeping the register access pattern identical to the real
// thing (binary.LittleEndian.PutUint32 at a fixed offset) even though
// nothing maps it into a process's page table.
type MMIOWindow struct {
	regs [0x200]byte
}

// NewMMIOWindow initializes a window reporting the given device id, the
// fields every driver checks before touching anything else during the
// device scan.
func NewMMIOWindow(deviceID uint32) *MMIOWindow {
	w := &MMIOWindow{}
	w.writeReg(uapi.RegMagicValue, uapi.MagicValueExpected)
	w.writeReg(uapi.RegVersion, uapi.VersionExpected)
	w.writeReg(uapi.RegDeviceID, deviceID)
	w.writeReg(uapi.RegQueueNumMax, constants.RingSize)
	return w
}

func (w *MMIOWindow) readReg(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(w.regs[offset : offset+4])
}

func (w *MMIOWindow) writeReg(offset uint32, v uint32) {
	binary.LittleEndian.PutUint32(w.regs[offset:offset+4], v)
}

// ReadReg exposes register reads for drivers/tests that want to probe the
// window directly (e.g. confirming the magic value during device scan).
func (w *MMIOWindow) ReadReg(offset uint32) uint32 { return w.readReg(offset) }

// WriteConfig64 writes a 64-bit little-endian value at the given config-space
// offset (relative to uapi.RegConfig), split across two 32-bit register
// writes the way a 32-bit MMIO bus actually delivers it. Used by a device's
// host-side setup code (e.g. internal/block recording a disk image's
// capacity) rather than by the driver, which only ever reads config space.
func (w *MMIOWindow) WriteConfig64(offset uint32, v uint64) {
	w.writeReg(uapi.RegConfig+offset, uint32(v))
	w.writeReg(uapi.RegConfig+offset+4, uint32(v>>32))
}

// ReadConfig64 reads a 64-bit little-endian value at the given config-space
// offset, the driver-side counterpart of WriteConfig64.
func (w *MMIOWindow) ReadConfig64(offset uint32) uint64 {
	lo := uint64(w.readReg(uapi.RegConfig + offset))
	hi := uint64(w.readReg(uapi.RegConfig + offset + 4))
	return lo | hi<<32
}

// Negotiate drives the ACK -> DRIVER -> FEATURES_OK -> DRIVER_OK handshake.
// Feature negotiation is a no-op beyond the handshake
// itself: this kernel requests no optional virtio features.
func Negotiate(w *MMIOWindow, log *logging.Logger) error {
	if w.readReg(uapi.RegMagicValue) != uapi.MagicValueExpected {
		return fmt.Errorf("virtio: bad magic value %#x", w.readReg(uapi.RegMagicValue))
	}
	if w.readReg(uapi.RegVersion) != uapi.VersionExpected {
		return fmt.Errorf("virtio: unsupported version %d", w.readReg(uapi.RegVersion))
	}

	status := uint32(0)
	status |= uapi.StatusAcknowledge
	w.writeReg(uapi.RegStatus, status)

	status |= uapi.StatusDriver
	w.writeReg(uapi.RegStatus, status)

	w.writeReg(uapi.RegDriverFeatures, 0)

	status |= uapi.StatusFeaturesOK
	w.writeReg(uapi.RegStatus, status)

	if w.readReg(uapi.RegStatus)&uapi.StatusFeaturesOK == 0 {
		panic("virtio: device rejected FEATURES_OK")
	}

	if log != nil {
		log.Debug("virtio handshake: features accepted", "device", w.readReg(uapi.RegDeviceID))
	}

	return nil
}

// Finalize marks DRIVER_OK once the caller has set up its queue, completing
// the handshake.
func Finalize(w *MMIOWindow) {
	status := w.readReg(uapi.RegStatus)
	w.writeReg(uapi.RegStatus, status|uapi.StatusDriverOK)
}

// RaiseInterrupt is the simulated device side signalling a completed
// request; InjectInterrupt-style callers (tests, the block backend) invoke
// it instead of a real PLIC external interrupt.
func (w *MMIOWindow) RaiseInterrupt() {
	w.writeReg(uapi.RegInterruptStatus, w.readReg(uapi.RegInterruptStatus)|1)
}

// AckInterrupt clears InterruptStatus by writing it back to InterruptACK,
// the step the real driver performs before walking the used ring.
func (w *MMIOWindow) AckInterrupt() {
	status := w.readReg(uapi.RegInterruptStatus)
	w.writeReg(uapi.RegInterruptACK, status)
	w.writeReg(uapi.RegInterruptStatus, 0)
}
