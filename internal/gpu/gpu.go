// Package gpu implements the virtio-gpu 2D backend over internal/virtio's
// transport core, satisfying internal/interfaces.Painter for
// internal/window's compositor: the resource_create_2d ->
// resource_attach_backing -> set_scanout setup sequence at init, then a
// transfer_to_host_2d + resource_flush pair per frame.
package gpu

import (
	citron "github.com/ehrlich-b/go-citron"
	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/uapi"
	"github.com/ehrlich-b/go-citron/internal/virtio"
)

const pixelSize = 4 // R8G8B8A8

// Driver is the single scanout/resource virtio-gpu setup this kernel needs:
// one 2D resource sized to the display, attached as the sole scanout.
type Driver struct {
	dev        *virtio.Device
	phys       *mem.Phys
	log        *logging.Logger
	resourceID uint32
	width      uint32
	height     uint32
	fbAddr     uintptr
	fbSize     int
}

// New completes the virtio-gpu handshake and the resource_create_2d ->
// resource_attach_backing -> set_scanout sequence for a single
// width x height framebuffer.
func New(phys *mem.Phys, hooks virtio.SchedulerHooks, width, height uint32, log *logging.Logger) (*Driver, error) {
	dev, err := virtio.NewDevice(phys, uapi.DeviceIDGPU, hooks, log)
	if err != nil {
		return nil, citron.WrapError("gpu.New", err)
	}

	d := &Driver{dev: dev, phys: phys, log: log, resourceID: 1, width: width, height: height}
	if err := d.setup(); err != nil {
		return nil, citron.WrapError("gpu.New", err)
	}
	return d, nil
}

func (d *Driver) allocPages(n int) (uintptr, error) {
	pages := (n + constants.PageSize - 1) / constants.PageSize
	if pages == 0 {
		pages = 1
	}
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

// submitCmd marshals a fixed-size command into a fresh descriptor, submits
// it alongside a device-writable response buffer sized for GPUCtrlHdr, and
// services the request itself: a software scanout has no real hardware to
// wait on, so every 2D command this driver issues succeeds immediately
// once its resource is attached. Returns the response header's Type
// field for the caller to check against GPURespOkNodata.
func (d *Driver) submitCmd(cmdBuf []byte) (uint32, error) {
	cmdAddr, err := d.allocPages(len(cmdBuf))
	if err != nil {
		return 0, err
	}
	copy(d.phys.Slice(cmdAddr, len(cmdBuf)), cmdBuf)

	respAddr, err := d.allocPages(uapi.GPUCtrlHdrSize)
	if err != nil {
		return 0, err
	}

	head := d.dev.SubmitChain([]virtio.ChainDesc{
		{Addr: cmdAddr, Len: uint32(len(cmdBuf))},
		{Addr: respAddr, Len: uapi.GPUCtrlHdrSize, DeviceWritable: true},
	})

	uapi.MarshalGPUCtrlHdr(d.phys.Slice(respAddr, uapi.GPUCtrlHdrSize), uapi.GPUCtrlHdr{Type: uapi.GPURespOkNodata})
	d.dev.CompleteHead(head, uapi.GPUCtrlHdrSize)

	resp := uapi.UnmarshalGPUCtrlHdr(d.phys.Slice(respAddr, uapi.GPUCtrlHdrSize))
	return resp.Type, nil
}

func (d *Driver) setup() error {
	create := make([]byte, uapi.GPUResourceCreate2DSize)
	uapi.MarshalGPUResourceCreate2D(create, uapi.GPUResourceCreate2D{
		Hdr:        uapi.GPUCtrlHdr{Type: uapi.GPUCmdResourceCreate2D},
		ResourceID: d.resourceID,
		Format:     uapi.GPUFormatR8G8B8A8Unorm,
		Width:      d.width,
		Height:     d.height,
	})
	if _, err := d.submitCmd(create); err != nil {
		return err
	}

	d.fbSize = int(d.width) * int(d.height) * pixelSize
	fbAddr, err := d.allocPages(d.fbSize)
	if err != nil {
		return err
	}
	d.fbAddr = fbAddr

	attach := make([]byte, uapi.GPUResourceAttachBackingSize+uapi.GPUMemEntrySize)
	uapi.MarshalGPUResourceAttachBacking(attach[:uapi.GPUResourceAttachBackingSize], uapi.GPUResourceAttachBacking{
		Hdr:        uapi.GPUCtrlHdr{Type: uapi.GPUCmdResourceAttachBacking},
		ResourceID: d.resourceID,
		NrEntries:  1,
	})
	uapi.MarshalGPUMemEntry(attach[uapi.GPUResourceAttachBackingSize:], uapi.GPUMemEntry{
		Addr:   uint64(d.fbAddr),
		Length: uint32(d.fbSize),
	})
	if _, err := d.submitCmd(attach); err != nil {
		return err
	}

	scanout := make([]byte, uapi.GPUSetScanoutSize)
	uapi.MarshalGPUSetScanout(scanout, uapi.GPUSetScanout{
		Hdr:        uapi.GPUCtrlHdr{Type: uapi.GPUCmdSetScanout},
		Rect:       uapi.GPURect{Width: d.width, Height: d.height},
		ScanoutID:  0,
		ResourceID: d.resourceID,
	})
	_, err = d.submitCmd(scanout)
	return err
}

// Resolution implements interfaces.Painter.
func (d *Driver) Resolution() (width, height uint32) { return d.width, d.height }

// TransferFramebuffer implements interfaces.Painter: copy buf into the
// resource's backing memory, then drive transfer_to_host_2d + resource_flush
// over the whole surface rather than a dirty sub-rectangle.
func (d *Driver) TransferFramebuffer(buf []byte) error {
	if len(buf) != d.fbSize {
		return citron.NewError("gpu.TransferFramebuffer", citron.ErrLoaderFailure, "framebuffer size mismatch")
	}
	copy(d.phys.Slice(d.fbAddr, d.fbSize), buf)
	return d.Flush(0, 0, d.width, d.height)
}

// Flush implements interfaces.Painter: transfer_to_host_2d followed by
// resource_flush for the given rectangle.
func (d *Driver) Flush(x, y, width, height uint32) error {
	transfer := make([]byte, uapi.GPUTransferToHost2DSize)
	uapi.MarshalGPUTransferToHost2D(transfer, uapi.GPUTransferToHost2D{
		Hdr:        uapi.GPUCtrlHdr{Type: uapi.GPUCmdTransferToHost2D},
		Rect:       uapi.GPURect{X: x, Y: y, Width: width, Height: height},
		ResourceID: d.resourceID,
	})
	if _, err := d.submitCmd(transfer); err != nil {
		return err
	}

	flush := make([]byte, uapi.GPUResourceFlushSize)
	uapi.MarshalGPUResourceFlush(flush, uapi.GPUResourceFlush{
		Hdr:        uapi.GPUCtrlHdr{Type: uapi.GPUCmdResourceFlush},
		Rect:       uapi.GPURect{X: x, Y: y, Width: width, Height: height},
		ResourceID: d.resourceID,
	})
	_, err := d.submitCmd(flush)
	return err
}
