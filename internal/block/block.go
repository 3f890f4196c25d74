// Package block implements the virtio-blk backend over internal/virtio's
// transport core, satisfying internal/interfaces.Disk for internal/fs.
// There is no separate hardware thread in
// this simulation to deliver a completion asynchronously, so the driver
// plays both roles: it publishes the request through the real avail/used
// ring protocol, then immediately acts as the device, moving bytes against
// backing (an internal/hostio image or any other interfaces.Disk) and
// retiring the descriptor chain itself via virtio.Device.CompleteHead.
package block

import (
	citron "github.com/ehrlich-b/go-citron"
	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/interfaces"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/uapi"
	"github.com/ehrlich-b/go-citron/internal/virtio"
)

// Driver is one virtio-blk device: a transport-core Device plus the
// sector-addressed read/write encoding on top of it, backed by an
// interfaces.Disk that holds the actual bytes.
type Driver struct {
	dev        *virtio.Device
	phys       *mem.Phys
	backing    interfaces.Disk
	log        *logging.Logger
	sectorSize int64
}

var _ interfaces.Disk = (*Driver)(nil)

// New completes the virtio-blk handshake and returns a Driver fronting
// backing. Capacity is derived from backing.Size() and published into the
// device's config space the way a real device's firmware would report it.
func New(phys *mem.Phys, hooks virtio.SchedulerHooks, backing interfaces.Disk, log *logging.Logger) (*Driver, error) {
	dev, err := virtio.NewDevice(phys, uapi.DeviceIDBlock, hooks, log)
	if err != nil {
		return nil, citron.WrapError("block.New", err)
	}
	capacitySectors := uint64(backing.Size()) / constants.DefaultSectorSize
	dev.Window.WriteConfig64(0, capacitySectors)
	return &Driver{
		dev:        dev,
		phys:       phys,
		backing:    backing,
		log:        log,
		sectorSize: constants.DefaultSectorSize,
	}, nil
}

// Size implements interfaces.Disk.
func (d *Driver) Size() int64 { return d.backing.Size() }

// Close implements interfaces.Disk: release the underlying backing store.
func (d *Driver) Close() error { return d.backing.Close() }

// Flush implements interfaces.Disk: forward to the backing store. Non-goals
// exclude persistent writes across a reboot for the RAM-disk case, but an
// internal/hostio-backed image still wants its mapping synced.
func (d *Driver) Flush() error { return d.backing.Flush() }

// allocStaging allocates the smallest run of physical pages covering n
// bytes. internal/mem.Phys's bump allocator only ever grows its cursor
// monotonically and this driver is the only caller between the first and
// last AllocFrame below, so consecutive calls are guaranteed contiguous,
// a property specific to the bump allocator, not one AllocFrame itself
// promises.
func (d *Driver) allocStaging(n int) (uintptr, error) {
	pages := (n + constants.PageSize - 1) / constants.PageSize
	first := uintptr(0)
	for i := 0; i < pages; i++ {
		addr, err := d.phys.AllocFrame()
		if err != nil {
			return 0, err
		}
		if i == 0 {
			first = addr
		}
	}
	return first, nil
}

// rangeToSectors returns the first sector and sector count covering
// [off, off+len(p)).
func (d *Driver) rangeToSectors(off int64, length int) (firstSector int64, nSectors int64, skip int64) {
	firstSector = off / d.sectorSize
	skip = off % d.sectorSize
	last := (off + int64(length) - 1) / d.sectorSize
	nSectors = last - firstSector + 1
	return
}

// ReadAt implements interfaces.Disk/io.ReaderAt: stage a read of every
// sector the range touches into one contiguous buffer, submit a single
// virtio-blk request, service it against the backing store as the device
// side, and copy the requested slice back out.
func (d *Driver) ReadAt(p []byte, off int64) (int, error) {
	firstSector, nSectors, skip := d.rangeToSectors(off, len(p))
	stagingLen := int(nSectors * d.sectorSize)

	headerAddr, err := d.allocStaging(uapi.BlkReqHeaderSize)
	if err != nil {
		return 0, err
	}
	payloadAddr, err := d.allocStaging(stagingLen)
	if err != nil {
		return 0, err
	}
	statusAddr, err := d.allocStaging(1)
	if err != nil {
		return 0, err
	}

	uapi.MarshalBlkReqHeader(d.phys.Slice(headerAddr, uapi.BlkReqHeaderSize), uapi.BlkReqHeader{
		Type:   uapi.BlkTypeIn,
		Sector: uint64(firstSector),
	})

	head := d.dev.Submit(virtio.Request{
		Header:         headerAddr,
		HeaderLen:      uapi.BlkReqHeaderSize,
		Payload:        payloadAddr,
		PayloadLen:     uint32(stagingLen),
		DeviceWritable: true,
		Status:         statusAddr,
		CheckStatus:    true,
	})

	if _, err := d.backing.ReadAt(d.phys.Slice(payloadAddr, stagingLen), firstSector*d.sectorSize); err != nil {
		return 0, citron.WrapError("block.ReadAt", err)
	}
	d.phys.Slice(statusAddr, 1)[0] = 0
	d.dev.CompleteHead(head, uint32(stagingLen))

	n := copy(p, d.phys.Slice(payloadAddr+uintptr(skip), stagingLen-int(skip)))
	return n, nil
}

// WriteAt implements interfaces.Disk/io.WriterAt: read-modify-write through
// the same staged request path as ReadAt for any range that doesn't cover
// whole sectors, then submit a BlkTypeOut request and service it against
// the backing store.
func (d *Driver) WriteAt(p []byte, off int64) (int, error) {
	firstSector, nSectors, skip := d.rangeToSectors(off, len(p))
	stagingLen := int(nSectors * d.sectorSize)

	headerAddr, err := d.allocStaging(uapi.BlkReqHeaderSize)
	if err != nil {
		return 0, err
	}
	payloadAddr, err := d.allocStaging(stagingLen)
	if err != nil {
		return 0, err
	}
	statusAddr, err := d.allocStaging(1)
	if err != nil {
		return 0, err
	}

	if skip != 0 || len(p) != stagingLen {
		if _, err := d.ReadAt(d.phys.Slice(payloadAddr, stagingLen), firstSector*d.sectorSize); err != nil {
			return 0, err
		}
	}
	copy(d.phys.Slice(payloadAddr+uintptr(skip), len(p)), p)

	uapi.MarshalBlkReqHeader(d.phys.Slice(headerAddr, uapi.BlkReqHeaderSize), uapi.BlkReqHeader{
		Type:   uapi.BlkTypeOut,
		Sector: uint64(firstSector),
	})

	head := d.dev.Submit(virtio.Request{
		Header:      headerAddr,
		HeaderLen:   uapi.BlkReqHeaderSize,
		Payload:     payloadAddr,
		PayloadLen:  uint32(stagingLen),
		Status:      statusAddr,
		CheckStatus: true,
	})

	if _, err := d.backing.WriteAt(d.phys.Slice(payloadAddr, stagingLen), firstSector*d.sectorSize); err != nil {
		return 0, citron.WrapError("block.WriteAt", err)
	}
	d.phys.Slice(statusAddr, 1)[0] = 0
	d.dev.CompleteHead(head, 0)

	return len(p), nil
}
